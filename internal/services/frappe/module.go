package frappe

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the Frappe server.
type Config struct {
	SiteURL        string `env:"FRAPPE_SITE_URL"`
	APIKey         string `env:"FRAPPE_API_KEY"`
	APISecret      string `env:"FRAPPE_API_SECRET"`
	TimeoutSeconds int    `env:"FRAPPE_TIMEOUT" envDefault:"30"`
	MaxRetries     int    `env:"FRAPPE_MAX_RETRIES" envDefault:"3"`
}

const defaultListLimit = 20

// Module builds the Frappe server. Without credentials the tools stay
// registered and report not_configured.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return NewModule(nil, err)
	}
	settings := []logging.Setting{
		{Key: "Site URL", Value: cfg.SiteURL},
		{Key: "API Key", Value: cfg.APIKey},
		{Key: "Timeout", Value: cfg.TimeoutSeconds},
		{Key: "Max Retries", Value: cfg.MaxRetries},
	}
	if missing := config.Missing(map[string]string{
		"FRAPPE_SITE_URL":   cfg.SiteURL,
		"FRAPPE_API_KEY":    cfg.APIKey,
		"FRAPPE_API_SECRET": cfg.APISecret,
	}, "FRAPPE_SITE_URL", "FRAPPE_API_KEY", "FRAPPE_API_SECRET"); len(missing) > 0 {
		module := NewModule(nil, apperrors.NotConfigured("Frappe", missing...))
		module.Settings = settings
		return module
	}
	var logger *zerolog.Logger
	if deps.Logger != nil {
		logger = &deps.Logger.Logger
	}
	client := NewClient(cfg, logger)
	module := NewModule(client, nil)
	module.Settings = settings
	module.Health = client.Ping
	return module
}

// server resolves the client for each call so a missing configuration
// surfaces as a tool error instead of a startup failure.
type server struct {
	client *Client
	cfgErr error
}

func (s server) get() (*Client, error) {
	if s.client == nil {
		return nil, domain.NotConfigured("Frappe", s.cfgErr)
	}
	return s.client, nil
}

// NewModule exposes client as MCP tools. client may be nil, in which case
// cfgErr is attached to every not_configured failure.
func NewModule(client *Client, cfgErr error) domain.Module {
	s := server{client: client, cfgErr: cfgErr}
	return domain.Module{
		Name: "Frappe",
		Tools: []domain.ToolRegistration{
			domain.Tool(&mcp.Tool{Name: "frappe_get_document", Description: "Get a document by doctype and name"}, s.getDocument),
			domain.Tool(&mcp.Tool{Name: "frappe_get_list", Description: "List documents of a doctype with optional JSON filters and fields"}, s.getList),
			domain.Tool(&mcp.Tool{Name: "frappe_create_document", Description: "Create a document from a JSON object"}, s.createDocument),
			domain.Tool(&mcp.Tool{Name: "frappe_update_document", Description: "Update fields of a document from a JSON object"}, s.updateDocument),
			domain.Tool(&mcp.Tool{Name: "frappe_delete_document", Description: "Delete a document"}, s.deleteDocument),
		},
		ConfigErr: cfgErr,
	}
}

// DocumentInput names one document.
type DocumentInput struct {
	Doctype string `json:"doctype" jsonschema:"document type, e.g. Customer"`
	Name    string `json:"name" jsonschema:"document name"`
}

// DocumentResult wraps a single document.
type DocumentResult struct {
	Data Document `json:"data"`
}

func (s server) getDocument(ctx context.Context, _ *mcp.CallToolRequest, in DocumentInput) (*mcp.CallToolResult, DocumentResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, DocumentResult{}, err
	}
	if err := domain.Require("doctype", in.Doctype, "name", in.Name); err != nil {
		return nil, DocumentResult{}, err
	}
	doc, err := c.GetDocument(ctx, in.Doctype, in.Name)
	if err != nil {
		return nil, DocumentResult{}, err
	}
	return nil, DocumentResult{Data: doc}, nil
}

// ListInput is the frappe_get_list input.
type ListInput struct {
	Doctype string `json:"doctype" jsonschema:"document type"`
	Filters string `json:"filters,omitempty" jsonschema:"filters as JSON, e.g. {\"status\": \"Open\"}"`
	Fields  string `json:"fields,omitempty" jsonschema:"fields as a JSON array, e.g. [\"name\", \"status\"]"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of documents (default 20)"`
	OrderBy string `json:"order_by,omitempty" jsonschema:"sort clause, e.g. modified desc"`
}

// ListResult is the frappe_get_list output.
type ListResult struct {
	Data  []Document `json:"data"`
	Count int        `json:"count"`
}

func (s server) getList(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, ListResult{}, err
	}
	if err := domain.Require("doctype", in.Doctype); err != nil {
		return nil, ListResult{}, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	docs, err := c.GetList(ctx, in.Doctype, ListQuery{
		Filters: in.Filters,
		Fields:  in.Fields,
		Limit:   limit,
		OrderBy: in.OrderBy,
	})
	if err != nil {
		return nil, ListResult{}, err
	}
	return nil, ListResult{Data: docs, Count: len(docs)}, nil
}

// CreateInput is the frappe_create_document input.
type CreateInput struct {
	Doctype string `json:"doctype" jsonschema:"document type"`
	Data    string `json:"data" jsonschema:"document fields as a JSON object"`
}

func (s server) createDocument(ctx context.Context, _ *mcp.CallToolRequest, in CreateInput) (*mcp.CallToolResult, DocumentResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, DocumentResult{}, err
	}
	if err := domain.Require("doctype", in.Doctype); err != nil {
		return nil, DocumentResult{}, err
	}
	var data Document
	if err := domain.DecodeJSONArg("data", in.Data, &data); err != nil {
		return nil, DocumentResult{}, err
	}
	doc, err := c.CreateDocument(ctx, in.Doctype, data)
	if err != nil {
		return nil, DocumentResult{}, err
	}
	return nil, DocumentResult{Data: doc}, nil
}

// UpdateInput is the frappe_update_document input.
type UpdateInput struct {
	Doctype string `json:"doctype" jsonschema:"document type"`
	Name    string `json:"name" jsonschema:"document name"`
	Data    string `json:"data" jsonschema:"fields to change as a JSON object"`
}

func (s server) updateDocument(ctx context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, DocumentResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, DocumentResult{}, err
	}
	if err := domain.Require("doctype", in.Doctype, "name", in.Name); err != nil {
		return nil, DocumentResult{}, err
	}
	var data Document
	if err := domain.DecodeJSONArg("data", in.Data, &data); err != nil {
		return nil, DocumentResult{}, err
	}
	doc, err := c.UpdateDocument(ctx, in.Doctype, in.Name, data)
	if err != nil {
		return nil, DocumentResult{}, err
	}
	return nil, DocumentResult{Data: doc}, nil
}

// DeleteResult is the frappe_delete_document output.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s server) deleteDocument(ctx context.Context, _ *mcp.CallToolRequest, in DocumentInput) (*mcp.CallToolResult, DeleteResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, DeleteResult{}, err
	}
	if err := domain.Require("doctype", in.Doctype, "name", in.Name); err != nil {
		return nil, DeleteResult{}, err
	}
	if err := c.DeleteDocument(ctx, in.Doctype, in.Name); err != nil {
		return nil, DeleteResult{}, err
	}
	return nil, DeleteResult{Success: true, Message: fmt.Sprintf("Deleted %s/%s", in.Doctype, in.Name)}, nil
}

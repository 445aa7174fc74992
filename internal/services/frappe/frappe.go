// Package frappe implements the Frappe/ERPNext MCP server over the
// /api/resource REST API.
package frappe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/httpclient"
)

// Client talks to one Frappe site.
type Client struct {
	http   *httpclient.Client
	logger zerolog.Logger
}

// NewClient builds a client authenticated with an API key pair.
func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Client{
		http: httpclient.New(httpclient.Options{
			BaseURL:    cfg.SiteURL,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.MaxRetries,
			Header: http.Header{
				"Authorization": {"token " + cfg.APIKey + ":" + cfg.APISecret},
			},
			Logger: logger,
		}),
		logger: l,
	}
}

func resourcePath(doctype string, name ...string) string {
	parts := []string{"/api/resource", url.PathEscape(doctype)}
	for _, n := range name {
		parts = append(parts, url.PathEscape(n))
	}
	return strings.Join(parts, "/")
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// Document is a Frappe document as returned by the API.
type Document = map[string]any

// GetDocument fetches doctype/name.
func (c *Client) GetDocument(ctx context.Context, doctype, name string) (Document, error) {
	var out envelope[Document]
	if err := c.http.Do(ctx, http.MethodGet, resourcePath(doctype, name), nil, nil, &out); err != nil {
		return nil, err
	}
	c.logger.Info().Str("doctype", doctype).Str("name", name).Msg("fetched document")
	return nonNil(out.Data), nil
}

// ListQuery selects documents. Filters and Fields are raw JSON.
type ListQuery struct {
	Filters string
	Fields  string
	Limit   int
	OrderBy string
}

// GetList lists documents of doctype.
func (c *Client) GetList(ctx context.Context, doctype string, q ListQuery) ([]Document, error) {
	params := url.Values{"limit_page_length": {strconv.Itoa(q.Limit)}}
	if f := strings.TrimSpace(q.Filters); f != "" {
		if !json.Valid([]byte(f)) {
			return nil, apperrors.New(apperrors.CodeJSON, "invalid JSON in filters")
		}
		params.Set("filters", f)
	}
	if f := strings.TrimSpace(q.Fields); f != "" {
		var fields []string
		if err := json.Unmarshal([]byte(f), &fields); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeJSON, "fields must be a JSON array of field names: "+err.Error(), err)
		}
		params.Set("fields", f)
	}
	if q.OrderBy != "" {
		params.Set("order_by", q.OrderBy)
	}
	var out envelope[[]Document]
	if err := c.http.Do(ctx, http.MethodGet, resourcePath(doctype), params, nil, &out); err != nil {
		return nil, err
	}
	c.logger.Info().Str("doctype", doctype).Int("count", len(out.Data)).Msg("listed documents")
	if out.Data == nil {
		return []Document{}, nil
	}
	return out.Data, nil
}

// CreateDocument inserts a document.
func (c *Client) CreateDocument(ctx context.Context, doctype string, data Document) (Document, error) {
	var out envelope[Document]
	if err := c.http.Do(ctx, http.MethodPost, resourcePath(doctype), nil, data, &out); err != nil {
		return nil, err
	}
	c.logger.Info().Str("doctype", doctype).Interface("name", out.Data["name"]).Msg("created document")
	return nonNil(out.Data), nil
}

// UpdateDocument updates fields of doctype/name.
func (c *Client) UpdateDocument(ctx context.Context, doctype, name string, data Document) (Document, error) {
	var out envelope[Document]
	if err := c.http.Do(ctx, http.MethodPut, resourcePath(doctype, name), nil, data, &out); err != nil {
		return nil, err
	}
	c.logger.Info().Str("doctype", doctype).Str("name", name).Msg("updated document")
	return nonNil(out.Data), nil
}

// DeleteDocument removes doctype/name.
func (c *Client) DeleteDocument(ctx context.Context, doctype, name string) error {
	if err := c.http.Do(ctx, http.MethodDelete, resourcePath(doctype, name), nil, nil, nil); err != nil {
		return err
	}
	c.logger.Info().Str("doctype", doctype).Str("name", name).Msg("deleted document")
	return nil
}

// Ping checks the credentials against the logged-in user endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.http.Do(ctx, http.MethodGet, "/api/method/frappe.auth.get_logged_user", nil, nil, nil)
}

func nonNil(d Document) Document {
	if d == nil {
		return Document{}
	}
	return d
}

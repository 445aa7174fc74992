package internet

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Config configures the internet server.
type Config struct {
	APIKey         string `env:"GOOGLE_API_KEY"`
	SearchEngineID string `env:"GOOGLE_SEARCH_ENGINE_ID"`
	// SearchURL overrides the Custom Search API host.
	SearchURL      string `env:"GOOGLE_SEARCH_URL"`
	TimeoutSeconds int    `env:"INTERNET_TIMEOUT" envDefault:"30"`
	MaxRetries     int    `env:"INTERNET_MAX_RETRIES" envDefault:"3"`
}

// Module builds the internet server. Missing search credentials only
// disable web_search.
func Module(_ context.Context, deps domain.Deps) domain.Module {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return domain.Module{Name: "Internet", ConfigErr: err}
	}
	var logger *zerolog.Logger
	if deps.Logger != nil {
		logger = &deps.Logger.Logger
	}
	client := NewClient(cfg, logger)
	module := NewModule(client)
	if missing := config.Missing(map[string]string{
		"GOOGLE_API_KEY":          cfg.APIKey,
		"GOOGLE_SEARCH_ENGINE_ID": cfg.SearchEngineID,
	}, "GOOGLE_API_KEY", "GOOGLE_SEARCH_ENGINE_ID"); len(missing) > 0 {
		module.ConfigErr = apperrors.NotConfigured("Google Custom Search", missing...)
	}
	module.Settings = []logging.Setting{
		{Key: "Timeout", Value: cfg.TimeoutSeconds},
		{Key: "Max Retries", Value: cfg.MaxRetries},
		{Key: "Search Configured", Value: client.SearchConfigured()},
	}
	return module
}

// NewModule exposes client as MCP tools.
func NewModule(client *Client) domain.Module {
	return domain.Module{
		Name: "Internet",
		Tools: []domain.ToolRegistration{
			domain.Tool(WebSearchTool(), WebSearchHandler(client)),
			domain.Tool(WebFetchTool(), WebFetchHandler(client)),
		},
	}
}

// WebSearchInput is the web_search input.
type WebSearchInput struct {
	Query        string `json:"query" jsonschema:"search query"`
	NumResults   int    `json:"num_results,omitempty" jsonschema:"number of results, 1 to 10 (default 10)"`
	Start        int    `json:"start,omitempty" jsonschema:"1-based index of the first result (default 1)"`
	SearchType   string `json:"search_type,omitempty" jsonschema:"set to image for image search"`
	FileType     string `json:"file_type,omitempty" jsonschema:"restrict to a file type such as pdf"`
	DateRestrict string `json:"date_restrict,omitempty" jsonschema:"recency filter: d[n], w[n], m[n] or y[n]"`
}

// WebSearchTool defines web_search.
func WebSearchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web with the Google Custom Search API",
	}
}

// WebSearchHandler runs a search.
func WebSearchHandler(client *Client) mcp.ToolHandlerFor[WebSearchInput, SearchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in WebSearchInput) (*mcp.CallToolResult, SearchResult, error) {
		num := in.NumResults
		if num == 0 {
			num = 10
		}
		out, err := client.Search(ctx, SearchRequest{
			Query:        in.Query,
			NumResults:   num,
			Start:        in.Start,
			SearchType:   in.SearchType,
			FileType:     in.FileType,
			DateRestrict: in.DateRestrict,
		})
		return nil, out, err
	}
}

// WebFetchInput is the web_fetch input.
type WebFetchInput struct {
	URL     string `json:"url" jsonschema:"http or https URL to fetch"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"request timeout in seconds"`
}

// WebFetchTool defines web_fetch.
func WebFetchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text",
	}
}

// WebFetchHandler fetches a page.
func WebFetchHandler(client *Client) mcp.ToolHandlerFor[WebFetchInput, Page] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in WebFetchInput) (*mcp.CallToolResult, Page, error) {
		out, err := client.Fetch(ctx, in.URL, time.Duration(in.Timeout)*time.Second)
		return nil, out, err
	}
}

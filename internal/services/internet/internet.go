// Package internet implements the web search and fetch MCP server.
package internet

import (
	"bytes"
	"context"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/platform/httpclient"
)

const (
	// UserAgent identifies web_fetch requests.
	UserAgent        = "mcpsuite-internet/1.0"
	maxFetchChars    = 50000
	searchPath       = "/customsearch/v1"
	defaultSearchURL = "https://www.googleapis.com"
)

// Client searches with the Google Custom Search API and fetches pages.
type Client struct {
	search   *httpclient.Client
	fetch    *httpclient.Client
	apiKey   string
	engineID string
	timeout  time.Duration
}

// NewClient builds a client. Search needs both the API key and the engine
// id; fetch works without them.
func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	base := cfg.SearchURL
	if base == "" {
		base = defaultSearchURL
	}
	return &Client{
		search: httpclient.New(httpclient.Options{
			BaseURL:    base,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}),
		// Fetch deadlines come from the request context.
		fetch: httpclient.New(httpclient.Options{
			MaxRetries: cfg.MaxRetries,
			HTTPClient: &http.Client{},
			Header: http.Header{
				"User-Agent": {UserAgent},
				"Accept":     {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			},
			Logger: logger,
		}),
		apiKey:   cfg.APIKey,
		engineID: cfg.SearchEngineID,
		timeout:  timeout,
	}
}

// SearchConfigured reports whether web_search can run.
func (c *Client) SearchConfigured() bool {
	return c.apiKey != "" && c.engineID != ""
}

// SearchRequest is a web search query.
type SearchRequest struct {
	Query      string
	NumResults int
	Start      int
	// SearchType "image" restricts results to images.
	SearchType string
	FileType   string
	// DateRestrict is d[n], w[n], m[n] or y[n].
	DateRestrict string
}

// SearchItem is one search hit.
type SearchItem struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	Snippet      string `json:"snippet"`
	DisplayLink  string `json:"display_link"`
	FormattedURL string `json:"formatted_url,omitempty"`
	Mime         string `json:"mime,omitempty"`
	FileFormat   string `json:"file_format,omitempty"`
}

// SearchResult is a page of search hits.
type SearchResult struct {
	Query        string       `json:"query"`
	TotalResults int64        `json:"total_results"`
	SearchTime   float64      `json:"search_time"`
	Items        []SearchItem `json:"items"`
}

type cseResponse struct {
	SearchInformation struct {
		TotalResults string  `json:"totalResults"`
		SearchTime   float64 `json:"searchTime"`
	} `json:"searchInformation"`
	Items []struct {
		Title        string `json:"title"`
		Link         string `json:"link"`
		Snippet      string `json:"snippet"`
		DisplayLink  string `json:"displayLink"`
		FormattedURL string `json:"formattedUrl"`
		Mime         string `json:"mime"`
		FileFormat   string `json:"fileFormat"`
	} `json:"items"`
}

// Search runs a Custom Search query. NumResults is clamped to 1..10.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if !c.SearchConfigured() {
		return SearchResult{}, apperrors.NotConfigured("Google Custom Search", "GOOGLE_API_KEY", "GOOGLE_SEARCH_ENGINE_ID")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return SearchResult{}, apperrors.Validation("query is required")
	}
	num := min(max(req.NumResults, 1), 10)
	start := max(req.Start, 1)

	params := url.Values{
		"key": {c.apiKey},
		"cx":  {c.engineID},
		"q":   {query},
		"num": {strconv.Itoa(num)},
	}
	if start > 1 {
		params.Set("start", strconv.Itoa(start))
	}
	if req.SearchType != "" {
		params.Set("searchType", req.SearchType)
	}
	if req.FileType != "" {
		params.Set("fileType", req.FileType)
	}
	if req.DateRestrict != "" {
		params.Set("dateRestrict", req.DateRestrict)
	}

	var raw cseResponse
	if err := c.search.Do(ctx, http.MethodGet, searchPath, params, nil, &raw); err != nil {
		return SearchResult{}, err
	}
	out := SearchResult{
		Query:      query,
		SearchTime: raw.SearchInformation.SearchTime,
		Items:      make([]SearchItem, 0, len(raw.Items)),
	}
	out.TotalResults, _ = strconv.ParseInt(raw.SearchInformation.TotalResults, 10, 64)
	for _, item := range raw.Items {
		out.Items = append(out.Items, SearchItem{
			Title:        item.Title,
			Link:         item.Link,
			Snippet:      item.Snippet,
			DisplayLink:  item.DisplayLink,
			FormattedURL: item.FormattedURL,
			Mime:         item.Mime,
			FileFormat:   item.FileFormat,
		})
	}
	return out, nil
}

// Page is fetched page content.
type Page struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	// Length counts characters before truncation.
	Length    int  `json:"length"`
	Truncated bool `json:"truncated"`
}

// Fetch GETs rawURL and returns its readable text. timeout of zero uses
// the configured default.
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	target, err := checkURL(rawURL)
	if err != nil {
		return Page{}, err
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.fetch.Send(ctx, httpclient.Request{Method: http.MethodGet, Path: target})
	if err != nil {
		return Page{}, err
	}
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if contentType == "" {
		mediaType = http.DetectContentType(resp.Body)
		contentType = mediaType
		mediaType, _, _ = mime.ParseMediaType(mediaType)
	}

	page := Page{
		URL:         target,
		FinalURL:    resp.URL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
	}
	switch {
	case isHTML(mediaType):
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return Page{}, apperrors.Wrap(apperrors.CodeUnexpected, "parse html: "+err.Error(), err)
		}
		page.Title, page.Text = ExtractText(doc)
	case isText(mediaType):
		page.Text = strings.ToValidUTF8(string(resp.Body), "�")
	default:
		return Page{}, apperrors.WithMetadata(apperrors.CodeValidation,
			"unsupported content type "+contentType+": only text and HTML can be fetched",
			map[string]any{"content_type": contentType, "status_code": resp.StatusCode})
	}
	page.Length = utf8.RuneCountInString(page.Text)
	if page.Length > maxFetchChars {
		page.Text = string([]rune(page.Text)[:maxFetchChars])
		page.Truncated = true
	}
	return page, nil
}

// ExtractText returns the page title and body text with scripts and styles
// removed and whitespace collapsed.
func ExtractText(doc *goquery.Document) (string, string) {
	title := collapse(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return title, collapse(body.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func checkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.Validation("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperrors.Validation("invalid url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apperrors.Validation("unsupported url scheme %q: use http or https", u.Scheme)
	}
	if u.Host == "" {
		return "", apperrors.Validation("url %q has no host", raw)
	}
	return u.String(), nil
}

func isHTML(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func isText(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml",
		mediaType == "application/javascript", mediaType == "application/x-yaml":
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	return false
}

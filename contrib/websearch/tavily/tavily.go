// Package tavily implements web search backed by the Tavily REST API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AiQura/ama-app/pkg/logging"
	"github.com/AiQura/ama-app/tool/websearch"
)

const defaultEndpoint = "https://api.tavily.com/search"

// Client calls Tavily's search endpoint. When the service fails or the key
// is missing it returns a labeled placeholder rather than an error, so a
// degraded pipeline run still completes.
type Client struct {
	apiKey     string
	maxResults int
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises the client.
type Option func(*Client)

// WithMaxResults caps the results per query (default 5).
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Tavily search client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		maxResults: 5,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logging.WithComponent("tavily"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ websearch.Searcher = (*Client)(nil)

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements websearch.Searcher.
func (c *Client) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	if c.apiKey == "" {
		c.logger.Warn("tavily key not configured, returning placeholder")
		return websearch.Placeholder(query), nil
	}

	payload := searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return websearch.Placeholder(query), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return websearch.Placeholder(query), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("tavily request failed", "error", err)
		return websearch.Placeholder(query), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Warn("tavily returned error status", "status", resp.StatusCode)
		return websearch.Placeholder(query), nil
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		c.logger.Warn("tavily response decode failed", "error", err)
		return websearch.Placeholder(query), nil
	}

	results := make([]websearch.Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, websearch.Result{Source: r.URL, Snippet: r.Content})
		if len(results) >= c.maxResults {
			break
		}
	}
	if len(results) == 0 {
		return websearch.Placeholder(query), nil
	}
	return results, nil
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("tavily(max_results=%d)", c.maxResults)
}

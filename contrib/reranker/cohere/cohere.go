// Package cohere reranks passages with Cohere's cross-encoder ReRank API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AiQura/ama-app/rag/reranker"
)

const defaultEndpoint = "https://api.cohere.com/v1/rerank"

// Client calls Cohere's ReRank endpoint and degrades to a local fallback
// reranker when the service is unreachable or misconfigured.
type Client struct {
	apiKey     string
	model      string
	topN       int
	httpClient *http.Client
	endpoint   string
	fallback   reranker.Reranker
}

// Option customises the client.
type Option func(*Client)

// WithModel overrides the default model (rerank-english-v3.0).
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTopN limits how many candidates are sent per call.
func WithTopN(topN int) Option {
	return func(c *Client) {
		if topN > 0 {
			c.topN = topN
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

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithFallback sets the reranker used when Cohere is unavailable. Defaults
// to score-preserving passthrough.
func WithFallback(r reranker.Reranker) Option {
	return func(c *Client) {
		if r != nil {
			c.fallback = r
		}
	}
}

// New creates a Cohere-backed reranker.
func New(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		model:      "rerank-english-v3.0",
		topN:       50,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   defaultEndpoint,
		fallback:   reranker.Passthrough{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ reranker.Reranker = (*Client)(nil)

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"relevance_score"`
	} `json:"results"`
}

// Rank implements reranker.Reranker.
func (c *Client) Rank(ctx context.Context, anchor string, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(anchor) == "" || c.apiKey == "" {
		return c.fallback.Rank(ctx, anchor, candidates)
	}

	limit := len(candidates)
	if limit > c.topN {
		limit = c.topN
	}
	docTexts := make([]string, limit)
	for i := 0; i < limit; i++ {
		docTexts[i] = candidates[i].Passage.Content
	}

	payload := rerankRequest{
		Model:     c.model,
		Query:     anchor,
		Documents: docTexts,
		TopN:      limit,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fallback.Rank(ctx, anchor, candidates)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.fallback.Rank(ctx, anchor, candidates)
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return c.fallback.Rank(ctx, anchor, candidates)
	}

	results := make([]reranker.Result, 0, len(rr.Results))
	for _, res := range rr.Results {
		if res.Index < 0 || res.Index >= limit {
			continue
		}
		results = append(results, reranker.Result{
			Passage: candidates[res.Index].Passage,
			Score:   res.Score,
		})
	}
	if len(results) == 0 {
		return c.fallback.Rank(ctx, anchor, candidates)
	}
	reranker.SortStable(results)
	return results, nil
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/refineloop/internal/core/error"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

const (
	DefaultEndpoint   = "https://api.tavily.com/search"
	DefaultMaxResults = 5
	defaultRetries    = 3
)

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	depth    string
	endpoint string
	retries  int
	backoff  time.Duration
	client   *http.Client
}

type Option func(*Tavily)

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) Option {
	return func(t *Tavily) { t.endpoint = url }
}

// WithHTTPClient overrides the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tavily) { t.client = c }
}

// WithBackoff sets the initial delay between 429 retries and how many retries are allowed.
func WithBackoff(initial time.Duration, retries int) Option {
	return func(t *Tavily) {
		t.backoff = initial
		t.retries = retries
	}
}

// NewTavily returns nil when apiKey is empty so callers can treat search as unconfigured.
func NewTavily(apiKey, depth string, opts ...Option) *Tavily {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if depth == "" {
		depth = "basic"
	}
	t := &Tavily{
		apiKey:   apiKey,
		depth:    depth,
		endpoint: DefaultEndpoint,
		retries:  defaultRetries,
		backoff:  time.Second,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts a query to Tavily and returns at most maxResults hits.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	if t == nil {
		return nil, errx.WrapSearch(errors.New("tavily: not configured"))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errx.WrapSearch(errors.New("tavily: empty query"))
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	payload, err := json.Marshal(tavilyRequest{Query: query, SearchDepth: t.depth, MaxResults: maxResults})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := t.backoff
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, errx.WrapSearch(fmt.Errorf("tavily request: %w", err))
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()
		if attempt >= t.retries {
			return nil, errx.WrapSearch(errors.New("tavily: rate limited"))
		}

		logx.Warn().Int("attempt", attempt+1).Dur("delay", delay).Msg("tavily rate limited, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errx.WrapSearch(fmt.Errorf("tavily http %d", resp.StatusCode))
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errx.WrapSearch(fmt.Errorf("tavily decode: %w", err))
	}

	results := make([]model.SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, model.SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

var _ model.SearchProvider = (*Tavily)(nil)

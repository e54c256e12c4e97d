package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RankQuery identifies one rank check.
type RankQuery struct {
	Keyword     string `json:"keyword"`
	Domain      string `json:"domain"`
	CountryCode string `json:"country"`
	Device      string `json:"device"`
}

// RankResult is the outcome of a rank check. Position is nil when the
// domain is not ranked within the checked results.
type RankResult struct {
	Position      *int   `json:"position"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	SearchResults int    `json:"search_results"`
}

// KeywordData is the supplemental keyword metadata used by enrichment.
type KeywordData struct {
	SearchVolume int     `json:"search_volume"`
	Difficulty   int     `json:"difficulty"`
	CPC          float64 `json:"cpc"`
	Intent       string  `json:"intent"`
}

// Client calls the rank checking HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// NewClient creates an API client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckRank asks the service for the current position of q.Domain for
// q.Keyword.
func (c *Client) CheckRank(ctx context.Context, q RankQuery) (*RankResult, error) {
	var res RankResult
	if err := c.do(ctx, http.MethodPost, "/v1/rank", nil, q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// KeywordData fetches volume, difficulty, CPC and intent of a keyword.
func (c *Client) KeywordData(ctx context.Context, keyword, countryCode string) (*KeywordData, error) {
	query := url.Values{"keyword": {keyword}, "country": {countryCode}}
	var res KeywordData
	if err := c.do(ctx, http.MethodGet, "/v1/keyword-data", query, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Join(ErrTimeout, err)
		}
		return errors.Join(ErrInvalidResponse, err)
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrUnavailable, err)
}

// Package ridesapi talks to the HTTP rides search endpoint.
package ridesapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/search"
)

const (
	searchPath      = "/rides/search"
	maxBodyBytes    = 4 << 20
	maxDetailLength = 200
)

// Client performs ride searches against a rides API server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for baseURL. token is sent as a bearer
// credential when non-empty.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("rides_api")
	return c
}

// Search fetches one page of listings matching f. Errors are classified with
// the search package taxonomy so the coordinator can pick a fallback.
func (c *Client) Search(ctx context.Context, f models.SearchFilters) (models.SearchResultPage, error) {
	f = f.Normalize()
	endpoint := c.baseURL + searchPath + "?" + f.Values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.SearchResultPage{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SearchResultPage{}, ctxErr
		}
		return models.SearchResultPage{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SearchResultPage{}, ctxErr
		}
		return models.SearchResultPage{}, &search.NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("search rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", req.Header.Get("X-Request-ID")))
		return models.SearchResultPage{}, &search.ServerError{Status: resp.StatusCode, Message: errorDetail(body)}
	}
	return decodePage(body, f.Page)
}

// classifyTransport separates failures that never reached the server from
// those that broke an established exchange.
func classifyTransport(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", search.ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", search.ErrUnreachable, err)
	}
	return &search.NetworkError{Err: err}
}

// errorDetail extracts a human readable message from an error body. JSON
// bodies carry it under detail, message or error. A bare JSON string is
// unwrapped and any other body is used verbatim.
func errorDetail(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"detail", "message", "error"} {
			if v := gjson.GetBytes(body, key); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				return truncateDetail(v.Str)
			}
		}
		if v := gjson.GetBytes(body, "detail.0.msg"); v.Exists() {
			return truncateDetail(v.String())
		}
		if v := gjson.ParseBytes(body); v.Type == gjson.String {
			return truncateDetail(v.Str)
		}
	}
	return truncateDetail(string(body))
}

// truncateDetail trims s and cuts it to maxDetailLength bytes on a rune
// boundary.
func truncateDetail(s string) string {
	text := strings.TrimSpace(s)
	if len(text) <= maxDetailLength {
		return text
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func decodePage(body []byte, requested int) (models.SearchResultPage, error) {
	if !gjson.ValidBytes(body) {
		return models.SearchResultPage{}, fmt.Errorf("%w: body is not json", search.ErrShapeMismatch)
	}
	if rides := gjson.GetBytes(body, "rides"); !rides.IsArray() {
		return models.SearchResultPage{}, search.ErrShapeMismatch
	}
	var page models.SearchResultPage
	if err := json.Unmarshal(body, &page); err != nil {
		return models.SearchResultPage{}, fmt.Errorf("%w: %v", search.ErrShapeMismatch, err)
	}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	if page.CurrentPage < 1 {
		page.CurrentPage = requested
	}
	if page.Listings == nil {
		page.Listings = []models.RideListing{}
	}
	return page, nil
}

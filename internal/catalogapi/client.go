// Package catalogapi fetches the product list from the public catalog API.
package catalogapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shelfdesk/internal/domain"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	DefaultURL     = "https://dummyjson.com/products"
	DefaultTimeout = 15 * time.Second
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog API %s responded with status %d", e.URL, e.StatusCode)
}

// listResponse is the envelope of the products endpoint; extra fields are ignored
type listResponse struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

// Config configures the catalog client
type Config struct {
	URL     string
	Limit   int // 0 asks the API for every product
	Timeout time.Duration
}

// Client is a read-only client of the remote catalog
type Client struct {
	http    *fasthttp.Client
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a catalog client
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	uri := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(uri)
	url := cfg.URL
	if err := uri.Parse(nil, []byte(cfg.URL)); err == nil {
		uri.QueryArgs().Set("limit", strconv.Itoa(cfg.Limit))
		url = uri.String()
	}

	return &Client{
		http: &fasthttp.Client{
			Name:                "shelfdesk",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		url:     url,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// URL returns the full request URL
func (c *Client) URL() string {
	return c.url
}

// FetchAll requests the full product list
func (c *Client) FetchAll(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("failed to request products: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, URL: c.url}
	}

	var body listResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	if body.Products == nil {
		body.Products = []domain.Product{}
	}

	c.logger.Debug("Fetched products from catalog API",
		zap.String("url", c.url),
		zap.Int("count", len(body.Products)),
		zap.Duration("duration", time.Since(start)),
	)

	return body.Products, nil
}

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jwalitptl/clinic-sync/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

// HTTPClientConfig configures the sync API client.
type HTTPClientConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// HTTPClient implements API over the server's sync endpoints:
// POST {base}/{resource}/sync to push, GET {base}/{resource}/sync to pull.
// A circuit breaker stops the device from hammering an unreachable server.
type HTTPClient struct {
	base    *url.URL
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

func NewHTTPClient(cfg HTTPClientConfig, log *logger.Logger) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sync base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:  base,
		token: cfg.AuthToken,
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "sync-api",
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		}),
		log: log.WithComponent("sync-api"),
	}, nil
}

func (c *HTTPClient) Push(ctx context.Context, resource string, records []json.RawMessage) (*PushResponse, error) {
	body, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push payload: %w", err)
	}

	var out PushResponse
	err = c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(resource), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)
		return c.do(req, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to push %s batch: %w", resource, err)
	}
	return &out, nil
}

func (c *HTTPClient) Pull(ctx context.Context, resource string, token string, limit int) (*PullResponse, error) {
	u := c.endpoint(resource)
	q := url.Values{}
	if token != "" {
		q.Set("process_token", token)
	}
	q.Set("limit", strconv.Itoa(limit))
	u += "?" + q.Encode()

	var out PullResponse
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		c.authorize(req)
		return c.do(req, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s page: %w", resource, err)
	}
	return &out, nil
}

func (c *HTTPClient) endpoint(resource string) string {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, resource, "sync")
	return u.String()
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

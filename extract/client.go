// Package extract fetches and parses the upstream open-data sources:
// the air quality REST API, the SensorThings traffic API, the weather
// page scrape, the construction GeoJSON feed and the KBA registration
// workbooks.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stadtlab/envcrawl/horosafe"
)

// Config configures the HTTP client.
type Config struct {
	Timeout  time.Duration // HTTP timeout. Default: 30s.
	MaxBytes int64         // Max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch (SSRF prevention).
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "envcrawl/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Client performs HTTP requests against the upstream sources.
type Client struct {
	client *http.Client
	config Config
}

// NewClient creates a Client with SSRF protection on redirects.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// get retrieves a URL and returns the body with the HTTP status code.
// Any non-2xx status is an error; the status code is still returned so
// callers can log it.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.config.URLValidator(url); err != nil {
		return nil, 0, fmt.Errorf("URL blocked (SSRF): %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// getJSON retrieves a URL and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, url string, v any) (int, error) {
	body, status, err := c.get(ctx, url)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return status, fmt.Errorf("decode %s: %w", url, err)
	}
	return status, nil
}

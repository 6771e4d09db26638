// Package gateway talks to the remote data gateway: a per-user key/value
// document store addressed by module identifier.
package gateway

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

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the gateway has no document for the id
var ErrNotFound = errors.New("document not found")

// StatusError is a non-2xx gateway response
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// DeleteResult is the gateway's answer to DeleteAll
type DeleteResult struct {
	Deleted int    `json:"deleted_records"`
	Message string `json:"message"`
}

// Config configures a Client
type Config struct {
	BaseURL     string
	Nonce       string
	NonceHeader string
	Timeout     time.Duration
}

// Client is the HTTP gateway client
type Client struct {
	baseURL     string
	nonce       string
	nonceHeader string
	httpClient  *http.Client
	log         *zap.Logger
}

// NewHTTPClient creates the HTTP client used for gateway calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			MaxIdleConns:    16,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// NewClient creates a gateway client. BaseURL is the REST namespace root,
// e.g. https://example.org/wp-json/framework-modular/v1/
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	header := cfg.NonceHeader
	if header == "" {
		header = "X-WP-Nonce"
	}
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:     base,
		nonce:       cfg.Nonce,
		nonceHeader: header,
		httpClient:  NewHTTPClient(cfg.Timeout),
		log:         log.Named("gateway"),
	}
}

// Get fetches the document stored for moduleID
func (c *Client) Get(ctx context.Context, moduleID string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, dataPath(moduleID), nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("gateway returned invalid JSON for %s", moduleID)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save replaces the whole document for moduleID
func (c *Client) Save(ctx context.Context, moduleID string, doc json.RawMessage) error {
	payload, err := json.Marshal(struct {
		Data json.RawMessage `json:"data"`
	}{Data: doc})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", moduleID, err)
	}

	if _, err := c.do(ctx, http.MethodPost, dataPath(moduleID), payload); err != nil {
		return err
	}
	c.log.Debug("document saved", zap.String("module", moduleID), zap.Int("bytes", len(doc)))
	return nil
}

// DeleteAll removes every document of the current principal
func (c *Client) DeleteAll(ctx context.Context) (*DeleteResult, error) {
	body, err := c.do(ctx, http.MethodDelete, "data", nil)
	if err != nil {
		return nil, err
	}
	var result DeleteResult
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode delete response: %w", err)
		}
	}
	return &result, nil
}

// Ping checks that the gateway namespace answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "", nil)
	return err
}

// dataPath escapes moduleID into a single path segment
func dataPath(moduleID string) string {
	return "data/" + url.PathEscape(moduleID)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	target := c.baseURL + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.nonce != "" {
		req.Header.Set(c.nonceHeader, c.nonce)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, target, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

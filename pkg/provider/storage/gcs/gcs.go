// Package gcs implements storage.ObjectStore against the Google Cloud Storage
// JSON API using simple (single-request) uploads.
//
// Authentication uses an oauth2 token source; in production this is the
// application-default service account via golang.org/x/oauth2/google.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrWong99/lexivox/pkg/provider/storage"
)

// Compile-time assertion that Client satisfies storage.ObjectStore.
var _ storage.ObjectStore = (*Client)(nil)

const (
	defaultBaseURL = "https://storage.googleapis.com"
	defaultTimeout = 120 * time.Second
)

// Client stages blobs in a single GCS bucket.
type Client struct {
	bucket     string
	tokens     oauth2.TokenSource
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the given bucket. tokens provides Bearer tokens
// for every request; use google.DefaultTokenSource in production.
func New(bucket string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket must not be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("gcs: token source must not be nil")
	}
	c := &Client{
		bucket:     bucket,
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Upload stores data via uploadType=media and returns the gs:// URI.
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.baseURL, url.PathEscape(c.bucket), url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("gcs: build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.authorize(req); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcs: upload %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gcs: upload %q returned %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)

	return "gs://" + c.bucket + "/" + name, nil
}

// Delete removes the object. A 404 is treated as success.
func (c *Client) Delete(ctx context.Context, name string) error {
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s",
		c.baseURL, url.PathEscape(c.bucket), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("gcs: build delete request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcs: delete %q: %w", name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("gcs: delete %q returned %d", name, resp.StatusCode)
}

func (c *Client) authorize(req *http.Request) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("gcs: obtain token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

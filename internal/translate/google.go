package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Engine = (*GoogleEngine)(nil)

const (
	defaultGoogleBaseURL = "https://translation.googleapis.com"

	// maxChunkChars keeps each request under the endpoint's query limit,
	// with headroom for multibyte text.
	maxChunkChars = 4500
)

// GoogleEngine translates through the Google Translate v2 REST endpoint.
// Long inputs are split at line boundaries and the translated chunks are
// rejoined, so message formatting survives translation.
type GoogleEngine struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GoogleOption is a functional option for configuring a GoogleEngine.
type GoogleOption func(*GoogleEngine)

// WithGoogleBaseURL overrides the endpoint base URL. Used in tests.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(e *GoogleEngine) { e.baseURL = strings.TrimSuffix(u, "/") }
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(e *GoogleEngine) { e.httpClient = hc }
}

// NewGoogleEngine creates a v2 translate client.
func NewGoogleEngine(apiKey string, opts ...GoogleOption) (*GoogleEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("translate: google api key must not be empty")
	}
	e := &GoogleEngine{
		apiKey:     apiKey,
		baseURL:    defaultGoogleBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate implements Engine.
func (e *GoogleEngine) Translate(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("translate: text must not be empty")
	}
	target = NormalizeCode(target)

	var parts []string
	for _, chunk := range splitChunks(text, maxChunkChars) {
		translated, err := e.translateChunk(ctx, chunk, target)
		if err != nil {
			return "", err
		}
		parts = append(parts, translated)
	}
	return strings.Join(parts, "\n"), nil
}

// translateChunk posts one chunk to the v2 endpoint.
func (e *GoogleEngine) translateChunk(ctx context.Context, chunk, target string) (string, error) {
	form := url.Values{}
	form.Set("q", chunk)
	form.Set("target", target)
	form.Set("format", "text")

	u := e.baseURL + "/language/translate/v2?key=" + url.QueryEscape(e.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: call endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("translate: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: endpoint returned %d: %s", resp.StatusCode, firstLine(data))
	}

	var out translateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: endpoint returned no translations")
	}
	// The endpoint HTML-escapes quotes and ampersands even in text mode.
	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}

// splitChunks breaks text into pieces of at most max characters, preferring
// line boundaries so translated chunks rejoin cleanly. A single line longer
// than max is split mid-line.
func splitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > max {
			flush()
			cut := max
			for cut > 0 && line[cut]&0xC0 == 0x80 {
				cut-- // do not split a UTF-8 sequence
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

// firstLine trims a response body for error messages.
func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i > 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

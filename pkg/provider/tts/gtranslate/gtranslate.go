// Package gtranslate implements tts.Synthesizer against the undocumented
// Google Translate speech endpoint (translate_tts).
//
// The endpoint caps input length per request, so longer text is split into
// chunks at whitespace boundaries and the resulting MP3 streams are
// concatenated. MPEG frames are self-delimiting, so simple concatenation
// yields a playable stream.
//
// This engine needs no API key, which makes it the default, but it is rate
// limited aggressively; deployments with real traffic should configure the
// edge or openai engines as fallbacks.
package gtranslate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// Compile-time assertion that Client satisfies tts.Synthesizer.
var _ tts.Synthesizer = (*Client)(nil)

const (
	defaultBaseURL = "https://translate.google.com"

	// maxChunkRunes is the per-request input ceiling. The endpoint rejects
	// queries around 200 characters, so chunks stay safely under that.
	maxChunkRunes = 180
)

const defaultLanguage = "en"

// Client synthesizes speech through the Google Translate TTS endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	language   string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDefaultLanguage sets the voice used when a request carries no language.
// Defaults to "en".
func WithDefaultLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// New creates a Google Translate TTS client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		language:   defaultLanguage,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize fetches one MP3 stream per text chunk and concatenates them.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return tts.Clip{}, fmt.Errorf("gtranslate: text must not be empty")
	}
	lang := req.Language
	if lang == "" {
		lang = c.language
	}

	var buf bytes.Buffer
	for _, chunk := range chunkText(text, maxChunkRunes) {
		data, err := c.fetchChunk(ctx, chunk, lang)
		if err != nil {
			return tts.Clip{}, err
		}
		buf.Write(data)
	}
	return tts.Clip{Data: buf.Bytes(), Format: tts.FormatMP3}, nil
}

// fetchChunk requests the MP3 audio for a single chunk.
func (c *Client) fetchChunk(ctx context.Context, chunk, lang string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)

	u := c.baseURL + "/translate_tts?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: build request: %w", err)
	}
	// The endpoint serves browsers; a bare Go user agent gets 403s.
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtranslate: endpoint returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("gtranslate: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("gtranslate: endpoint returned empty audio")
	}
	return data, nil
}

// chunkText splits text into pieces of at most maxRunes runes, preferring
// whitespace boundaries. A single word longer than maxRunes is split
// mid-word rather than dropped.
func chunkText(text string, maxRunes int) []string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)
		if wordLen > maxRunes {
			flush()
			runes := []rune(word)
			for len(runes) > maxRunes {
				chunks = append(chunks, string(runes[:maxRunes]))
				runes = runes[maxRunes:]
			}
			cur.WriteString(string(runes))
			curLen = len(runes)
			continue
		}
		if curLen > 0 && curLen+1+wordLen > maxRunes {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wordLen
	}
	flush()
	return chunks
}

// Package googlesync implements stt.Transcriber against the synchronous
// Google Cloud Speech-to-Text REST endpoint (speech:recognize).
//
// The sync endpoint has a hard one-minute/10 MB ceiling enforced upstream by
// the strategy selector; this client never checks it.
package googlesync

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

// Compile-time assertions that Client satisfies the stt interfaces.
var (
	_ stt.Transcriber   = (*Client)(nil)
	_ stt.MIMESupporter = (*Client)(nil)
)

const (
	defaultBaseURL       = "https://speech.googleapis.com"
	defaultTimeout       = 60 * time.Second
	defaultMinConfidence = 0.3
)

// Client calls the speech:recognize endpoint with an API key.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	minConfidence float64
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

// WithMinConfidence sets the confidence floor below which a recognition is
// treated as no speech. Defaults to 0.3.
func WithMinConfidence(f float64) Option {
	return func(c *Client) { c.minConfidence = f }
}

// New creates a sync recognizer client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("googlesync: apiKey must not be empty")
	}
	c := &Client{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		minConfidence: defaultMinConfidence,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// encodingFor maps a declared MIME type to the recognizer's wire encoding.
// Opus containers must declare 48 kHz explicitly; WAV is the canonical
// normalized 16 kHz output; MP3 and FLAC carry their rate in-band.
func encodingFor(mimeType string) (encoding string, sampleRate int, ok bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/webm":
		return "WEBM_OPUS", 48000, true
	case "audio/ogg", "audio/opus":
		return "OGG_OPUS", 48000, true
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "LINEAR16", 16000, true
	case "audio/mpeg", "audio/mp3":
		return "MP3", 0, true
	case "audio/flac", "audio/x-flac":
		return "FLAC", 0, true
	}
	return "", 0, false
}

// SupportsMIME reports whether the recognizer has a wire encoding for the
// MIME type. Types outside the set need transcoding to WAV first.
func (c *Client) SupportsMIME(mimeType string) bool {
	_, _, ok := encodingFor(mimeType)
	return ok
}

type recognizeConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe sends req.Audio inline and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if req.ObjectURI != "" {
		return stt.Result{}, fmt.Errorf("googlesync: staged object URIs require the long-running backend")
	}

	encoding, rate, ok := encodingFor(req.MIMEType)
	if !ok {
		return stt.Result{}, fmt.Errorf("googlesync: no recognizer encoding for MIME type %q", req.MIMEType)
	}

	lang := req.Language
	if lang == "" {
		lang = "en-US"
	}

	body := recognizeRequest{
		Config: recognizeConfig{
			Encoding:                   encoding,
			SampleRateHertz:            rate,
			LanguageCode:               lang,
			EnableAutomaticPunctuation: true,
		},
	}
	body.Audio.Content = base64.StdEncoding.EncodeToString(req.Audio)

	payload, err := json.Marshal(body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("googlesync: marshal request: %w", err)
	}

	url := c.baseURL + "/v1/speech:recognize?key=" + c.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return stt.Result{}, fmt.Errorf("googlesync: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("googlesync: recognize call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return stt.Result{}, fmt.Errorf("googlesync: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("googlesync: recognize returned %d: %s", resp.StatusCode, excerpt(data))
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("googlesync: decode response: %w", err)
	}
	if parsed.Error != nil {
		return stt.Result{}, fmt.Errorf("googlesync: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	return collectResult(parsed, c.minConfidence)
}

// collectResult joins all result segments and applies the confidence floor.
func collectResult(parsed recognizeResponse, minConfidence float64) (stt.Result, error) {
	var (
		parts []string
		best  float64
	)
	for _, r := range parsed.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
		}
		if alt.Confidence > best {
			best = alt.Confidence
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	if best > 0 && best < minConfidence {
		return stt.Result{}, fmt.Errorf("%w: best confidence %.2f", stt.ErrNoSpeech, best)
	}
	return stt.Result{Text: text, Confidence: best}, nil
}

// excerpt trims an error body for log-friendly messages.
func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

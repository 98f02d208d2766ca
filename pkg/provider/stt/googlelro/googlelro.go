// Package googlelro implements stt.Transcriber against the asynchronous
// Google Cloud Speech-to-Text endpoint (speech:longrunningrecognize).
//
// The long-running path handles assets above the sync ceiling. Audio is
// normalized upstream to mono 16 kHz LINEAR16 WAV, staged in object storage,
// submitted by gs:// URI, and the resulting operation is polled with bounded
// exponential backoff until done or the wall-clock deadline expires. The
// staged object is deleted on every exit path; leaking one is a defect.
package googlelro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/MrWong99/lexivox/pkg/provider/storage"
	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

// Compile-time assertions that Client satisfies the stt interfaces.
var (
	_ stt.Transcriber   = (*Client)(nil)
	_ stt.Stager        = (*Client)(nil)
	_ stt.MIMESupporter = (*Client)(nil)
)

const (
	defaultBaseURL      = "https://speech.googleapis.com"
	defaultPollInitial  = 5 * time.Second
	defaultPollMax      = 30 * time.Second
	defaultPollTimeout  = 15 * time.Minute
	defaultObjectPrefix = "discord_uploads/"
)

// Client submits long-running recognition jobs and polls them to completion.
type Client struct {
	tokens       oauth2.TokenSource
	store        storage.ObjectStore
	objectPrefix string
	baseURL      string
	httpClient   *http.Client
	pollInitial  time.Duration
	pollMax      time.Duration
	pollTimeout  time.Duration

	stagedMu sync.Mutex
	staged   map[string]string // object URI -> store name
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

// WithObjectPrefix sets the staging object name prefix.
// Defaults to "discord_uploads/".
func WithObjectPrefix(p string) Option {
	return func(c *Client) { c.objectPrefix = p }
}

// WithPollInterval sets the initial and maximum poll intervals for the
// exponential backoff.
func WithPollInterval(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.pollInitial = initial
		}
		if max > 0 {
			c.pollMax = max
		}
	}
}

// WithPollTimeout bounds the total polling wall-clock time. After the
// timeout the job is abandoned (marked failed, not retried).
func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// New creates a long-running recognizer client. tokens authenticates the
// speech API calls; store stages the audio blobs.
func New(tokens oauth2.TokenSource, store storage.ObjectStore, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("googlelro: token source must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("googlelro: object store must not be nil")
	}
	c := &Client{
		tokens:       tokens,
		store:        store,
		objectPrefix: defaultObjectPrefix,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInitial:  defaultPollInitial,
		pollMax:      defaultPollMax,
		pollTimeout:  defaultPollTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type lroRequest struct {
	Config struct {
		Encoding                   string `json:"encoding"`
		SampleRateHertz            int    `json:"sampleRateHertz"`
		LanguageCode               string `json:"languageCode"`
		EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	} `json:"config"`
	Audio struct {
		URI string `json:"uri"`
	} `json:"audio"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		Results []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"results"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stage uploads audio to object storage under a fresh name and returns its
// URI. Callers that retry recognition over the same bytes stage once, pass
// the URI via Request.ObjectURI on every attempt, and Unstage when the job
// ends; Transcribe then never re-uploads.
func (c *Client) Stage(ctx context.Context, audio []byte, mimeType string) (string, error) {
	name := c.objectPrefix + uuid.NewString() + extensionFor(mimeType)
	uri, err := c.store.Upload(ctx, name, audio, mimeType)
	if err != nil {
		return "", fmt.Errorf("googlelro: stage audio: %w", err)
	}
	c.stagedMu.Lock()
	if c.staged == nil {
		c.staged = make(map[string]string)
	}
	c.staged[uri] = name
	c.stagedMu.Unlock()
	return uri, nil
}

// Unstage deletes an object previously returned by Stage.
func (c *Client) Unstage(ctx context.Context, uri string) error {
	c.stagedMu.Lock()
	name, ok := c.staged[uri]
	delete(c.staged, uri)
	c.stagedMu.Unlock()
	if !ok {
		return fmt.Errorf("googlelro: unknown staged object %q", uri)
	}
	if err := c.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("googlelro: delete staged object %q: %w", name, err)
	}
	return nil
}

// SupportsMIME reports whether audio can be submitted without transcoding.
// The submitted config is always LINEAR16, so only WAV qualifies.
func (c *Client) SupportsMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/wav") ||
		strings.HasPrefix(strings.ToLower(mimeType), "audio/x-wav")
}

// Transcribe stages req.Audio (unless req.ObjectURI is already set), submits
// the job, polls the operation, and returns the transcript. An object staged
// here is removed before returning, whatever the outcome; an object staged by
// the caller via [Client.Stage] is left for the caller to Unstage.
func (c *Client) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	uri := req.ObjectURI
	if uri == "" {
		staged, err := c.Stage(ctx, req.Audio, req.MIMEType)
		if err != nil {
			return stt.Result{}, err
		}
		// Cleanup must survive ctx cancellation, so it gets its own context.
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.Unstage(cleanupCtx, staged); err != nil {
				slog.Warn("googlelro: failed to delete staged object", "uri", staged, "error", err)
			}
		}()
		uri = staged
	}

	opName, err := c.submit(ctx, uri, req.Language)
	if err != nil {
		return stt.Result{}, err
	}
	return c.poll(ctx, opName)
}

// submit starts the long-running recognition job and returns the operation name.
func (c *Client) submit(ctx context.Context, audioURI, language string) (string, error) {
	var body lroRequest
	body.Config.Encoding = "LINEAR16"
	body.Config.SampleRateHertz = 16000
	body.Config.LanguageCode = language
	if body.Config.LanguageCode == "" {
		body.Config.LanguageCode = "en-US"
	}
	body.Config.EnableAutomaticPunctuation = true
	body.Audio.URI = audioURI

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("googlelro: marshal request: %w", err)
	}

	data, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v1/speech:longrunningrecognize", payload)
	if err != nil {
		return "", err
	}

	var op operationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		return "", fmt.Errorf("googlelro: decode submit response: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("googlelro: submit returned no operation name")
	}
	return op.Name, nil
}

// poll checks the operation with exponential backoff until done, ctx is
// cancelled, or the poll timeout expires.
func (c *Client) poll(ctx context.Context, opName string) (stt.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	interval := c.pollInitial
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return stt.Result{}, fmt.Errorf("googlelro: operation %s abandoned: %w", opName, ctx.Err())
		case <-timer.C:
		}

		data, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v1/operations/"+path.Base(opName), nil)
		if err != nil {
			return stt.Result{}, err
		}

		var op operationResponse
		if err := json.Unmarshal(data, &op); err != nil {
			return stt.Result{}, fmt.Errorf("googlelro: decode operation: %w", err)
		}
		if op.Error != nil {
			return stt.Result{}, fmt.Errorf("googlelro: operation failed: %d %s", op.Error.Code, op.Error.Message)
		}
		if op.Done {
			return collectResult(op)
		}

		interval = min(interval*3/2, c.pollMax)
		timer.Reset(interval)
	}
}

// collectResult extracts the transcript from a completed operation.
func collectResult(op operationResponse) (stt.Result, error) {
	if op.Response == nil {
		return stt.Result{}, stt.ErrNoSpeech
	}
	var (
		parts []string
		best  float64
	)
	for _, r := range op.Response.Results {
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
	return stt.Result{Text: text, Confidence: best}, nil
}

// doJSON performs an authenticated request and returns the response body.
func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("googlelro: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("googlelro: obtain token: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("googlelro: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("googlelro: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("googlelro: %s returned %d: %s", url, resp.StatusCode, excerpt(data))
	}
	return data, nil
}

// extensionFor picks a staging object extension from the MIME type.
func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/wav"), strings.HasPrefix(mimeType, "audio/x-wav"):
		return ".wav"
	case strings.HasPrefix(mimeType, "audio/mpeg"), strings.HasPrefix(mimeType, "audio/mp3"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "audio/flac"):
		return ".flac"
	default:
		return ".bin"
	}
}

// excerpt trims an error body for log-friendly messages.
func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

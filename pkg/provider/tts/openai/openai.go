// Package openai implements tts.Synthesizer using the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// DefaultVoice is the voice used when none is configured.
const DefaultVoice = oai.AudioSpeechNewParamsVoiceAlloy

// pcmSampleRate is the fixed rate of the API's raw PCM response format.
const pcmSampleRate = 24000

// Ensure Client implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Client)(nil)

// Client implements tts.Synthesizer using the OpenAI API. The API picks
// the spoken language from the input text itself, so the request language is
// not forwarded.
type Client struct {
	client oai.Client
	model  oai.SpeechModel
	voice  oai.AudioSpeechNewParamsVoice
}

// config holds optional configuration for the client.
type config struct {
	baseURL string
	model   oai.SpeechModel
	voice   oai.AudioSpeechNewParamsVoice
	timeout time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to DefaultModel.
func WithModel(model oai.SpeechModel) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the voice. Defaults to DefaultVoice (alloy).
func WithVoice(voice oai.AudioSpeechNewParamsVoice) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}

	cfg := &config{
		model: DefaultModel,
		voice: DefaultVoice,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Synthesizer. The raw PCM response format is
// requested so playback can skip the MP3 decode step entirely.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	if req.Text == "" {
		return tts.Clip{}, fmt.Errorf("openai tts: text must not be empty")
	}

	resp, err := c.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          c.model,
		Voice:          c.voice,
		Input:          req.Text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return tts.Clip{}, fmt.Errorf("openai tts: empty audio response")
	}
	return tts.Clip{
		Data:       data,
		Format:     tts.FormatPCM16,
		SampleRate: pcmSampleRate,
		Channels:   1,
	}, nil
}

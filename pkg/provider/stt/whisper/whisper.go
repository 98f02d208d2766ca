// Package whisper implements stt.Transcriber with the whisper.cpp CGO
// bindings, for deployments that transcribe locally instead of calling the
// Google endpoints. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across calls; each call
// creates its own whisper context, so concurrent transcriptions do not
// interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/lexivox/pkg/audio"
	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

// Compile-time assertions that Provider satisfies the stt interfaces.
var (
	_ stt.Transcriber   = (*Provider)(nil)
	_ stt.MIMESupporter = (*Provider)(nil)
)

const defaultLanguage = "en"

// Provider runs batch inference against a loaded whisper.cpp model.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the fallback language code used when a request carries no
// hint (e.g., "en", "th"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs inference over req.Audio, which must be the canonical
// normalized WAV (mono 16 kHz PCM16). Whisper cannot read staged object URIs
// or compressed containers; the normalizer handles those upstream.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if req.ObjectURI != "" {
		return stt.Result{}, errors.New("whisper: staged object URIs are not supported")
	}

	pcm, info, err := audio.ParseWAV(req.Audio)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: expected WAV input: %w", err)
	}
	// Uploads in the recognizer-native set skip the ffmpeg normalizer, so a
	// plain WAV may arrive as 44.1 kHz stereo. Downmix and resample here
	// rather than rejecting it.
	switch info.Channels {
	case audio.CanonicalChannels:
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return stt.Result{}, fmt.Errorf("whisper: input is %s, want %s",
			audio.FormatString(info.SampleRate, info.Channels),
			audio.FormatString(audio.CanonicalSampleRate, audio.CanonicalChannels))
	}
	if info.SampleRate != audio.CanonicalSampleRate {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, audio.CanonicalSampleRate)
	}

	samples := pcmToFloat32(pcm)

	// Each context is not thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(baseLanguage(lang)); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if t := strings.TrimSpace(segment.Text); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text}, nil
}

// SupportsMIME reports whether Transcribe can decode the MIME type without
// prior transcoding. Only WAV containers qualify; compressed uploads in the
// cloud recognizers' native set still go through the normalizer here.
func (p *Provider) SupportsMIME(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return true
	}
	return false
}

// baseLanguage strips a BCP-47 region suffix; whisper.cpp wants bare codes.
func baseLanguage(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}

// pcmToFloat32 converts little-endian int16 PCM to normalized float32 samples.
func pcmToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

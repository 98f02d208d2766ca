// Package tts defines the Synthesizer interface for Text-to-Speech engines.
//
// A synthesizer turns a text string into a single encoded audio clip. The
// playback layer decodes clips to PCM and streams them into voice channels;
// synthesizers never touch Discord directly.
//
// Engines register themselves in a Registry under a stable name so the active
// engine (and its fallbacks) can be switched by configuration at runtime
// without re-wiring the playback queues.
package tts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ClipFormat identifies the container/encoding of a synthesized clip.
type ClipFormat string

const (
	// FormatMP3 is an MPEG audio stream. Requires decoding before playback.
	FormatMP3 ClipFormat = "mp3"
	// FormatWAV is a RIFF WAV container with PCM16 samples.
	FormatWAV ClipFormat = "wav"
	// FormatPCM16 is headerless little-endian 16-bit PCM. SampleRate and
	// Channels describe the stream.
	FormatPCM16 ClipFormat = "pcm16"
)

// Clip is one synthesized utterance.
type Clip struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// Format describes the encoding of Data.
	Format ClipFormat

	// SampleRate is the sample rate in Hz. Only meaningful for FormatPCM16;
	// container formats carry their own rate.
	SampleRate int

	// Channels is the channel count. Only meaningful for FormatPCM16.
	Channels int
}

// Request describes a single synthesis.
type Request struct {
	// Text is the text to speak. Must not be empty.
	Text string

	// Language is a BCP-47 language tag selecting the voice (e.g. "en",
	// "th", "ja"). Engines fall back to their default voice when empty or
	// unrecognized.
	Language string
}

// Synthesizer is the abstraction over any TTS engine.
//
// Implementations must be safe for concurrent use; the playback manager runs
// one synthesis per voice channel in parallel.
type Synthesizer interface {
	// Synthesize converts req.Text into a single audio clip. Returns an
	// error if the engine cannot produce audio; the playback layer then
	// tries the configured fallback engines in order.
	Synthesize(ctx context.Context, req Request) (Clip, error)
}

// ErrEngineNotRegistered is returned by Registry.Get for unknown names.
type ErrEngineNotRegistered struct {
	Name string
}

func (e *ErrEngineNotRegistered) Error() string {
	return fmt.Sprintf("tts: engine %q is not registered", e.Name)
}

// Registry maps engine names to synthesizers. The zero value is ready to use.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Synthesizer
}

// Register adds or replaces the engine under name.
func (r *Registry) Register(name string, s Synthesizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engines == nil {
		r.engines = make(map[string]Synthesizer)
	}
	r.engines[name] = s
}

// Get returns the engine registered under name, or *ErrEngineNotRegistered.
func (r *Registry) Get(name string) (Synthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.engines[name]
	if !ok {
		return nil, &ErrEngineNotRegistered{Name: name}
	}
	return s, nil
}

// Names returns all registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

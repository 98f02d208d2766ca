// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to feed controlled clips to consumers and to verify the
// text and language passed to the engine:
//
//	s := &mock.Synthesizer{
//	    Outcomes: []mock.Outcome{{Clip: tts.Clip{Data: []byte("mp3"), Format: tts.FormatMP3}}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Outcome scripts the result of a single Synthesize call.
type Outcome struct {
	Clip tts.Clip
	Err  error
}

// Synthesizer is a mock implementation of tts.Synthesizer. Outcomes are
// consumed in order; when exhausted, the last outcome repeats. Thread-safe.
type Synthesizer struct {
	mu sync.Mutex

	// Outcomes is the scripted sequence of results.
	Outcomes []Outcome

	// Calls records every request in order.
	Calls []tts.Request
}

// Synthesize records the call and returns the next scripted outcome.
func (s *Synthesizer) Synthesize(_ context.Context, req tts.Request) (tts.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, req)
	if len(s.Outcomes) == 0 {
		return tts.Clip{}, nil
	}
	i := len(s.Calls) - 1
	if i >= len(s.Outcomes) {
		i = len(s.Outcomes) - 1
	}
	return s.Outcomes[i].Clip, s.Outcomes[i].Err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

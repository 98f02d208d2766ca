// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to script one outcome per call and inspect the requests the
// caller issued:
//
//	tr := &mock.Transcriber{
//	    Outcomes: []mock.Outcome{
//	        {Err: stt.ErrNoSpeech},
//	        {Result: stt.Result{Text: "hello", Confidence: 0.92}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

// Outcome is the scripted return value for one Transcribe call.
type Outcome struct {
	Result stt.Result
	Err    error
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Outcomes are consumed one per call, in order. When exhausted, the last
	// outcome repeats. An empty list returns the zero Result.
	Outcomes []Outcome

	// Calls records every request passed to Transcribe.
	Calls []stt.Request

	next int
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records req and returns the next scripted outcome.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, req)

	if len(t.Outcomes) == 0 {
		return stt.Result{}, nil
	}
	o := t.Outcomes[min(t.next, len(t.Outcomes)-1)]
	t.next++
	return o.Result, o.Err
}

// CallCount returns the number of Transcribe invocations so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

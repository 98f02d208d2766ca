package transcribe

import (
	"errors"
)

// ErrExhausted is the terminal outcome when every language hint produced no
// speech. It is surfaced to the user as a failure, never silently dropped.
var ErrExhausted = errors.New("transcribe: no speech recognized in any candidate language")

// Job tracks one transcription through its hint list. A job is terminal once
// a transcript is produced or the hints are exhausted; the attempt count can
// never exceed the hint count.
type Job struct {
	// Asset is the media being transcribed.
	Asset MediaAsset

	// Plan is the selector's decision for the asset.
	Plan Plan

	hints    []string
	cursor   int
	attempts int
}

// NewJob creates a job over the ordered hint list, best guess first.
func NewJob(asset MediaAsset, plan Plan, hints []string) (*Job, error) {
	if len(hints) == 0 {
		return nil, errors.New("transcribe: job needs at least one language hint")
	}
	return &Job{
		Asset: asset,
		Plan:  plan,
		hints: append([]string(nil), hints...),
	}, nil
}

// Hint returns the current language hint.
func (j *Job) Hint() string {
	return j.hints[j.cursor]
}

// Attempts returns how many hints have been tried so far.
func (j *Job) Attempts() int {
	return j.attempts
}

// begin marks the current hint as attempted.
func (j *Job) begin() {
	j.attempts++
}

// advance moves to the next hint. Returns false when the list is exhausted.
func (j *Job) advance() bool {
	if j.cursor+1 >= len(j.hints) {
		return false
	}
	j.cursor++
	return true
}

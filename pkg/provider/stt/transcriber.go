// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// A Transcriber wraps one recognition service (the Google Speech sync
// endpoint, its long-running variant, or a local whisper.cpp model) and
// converts a single recorded asset into text. Streaming recognition is out of
// scope; uploaded attachments are always complete files.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when the backend completed successfully but
// produced no usable transcript for the given language hint. Callers retry
// with the next candidate language, not with the same one.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Request describes one transcription attempt.
type Request struct {
	// Audio is the asset content for backends that accept inline bytes.
	// Ignored when ObjectURI is set.
	Audio []byte

	// ObjectURI references staged audio in external object storage
	// (e.g., "gs://bucket/name") for long-running backends.
	ObjectURI string

	// MIMEType is the declared content type of Audio. Backends map it to
	// their wire encoding; unrecognized types are rejected.
	MIMEType string

	// Language is the BCP-47 hint biasing recognition (e.g., "en-US", "th").
	Language string
}

// Result is a successful transcription.
type Result struct {
	// Text is the recognized transcript, non-empty.
	Text string

	// Confidence is the backend's confidence in [0, 1], or 0 if the backend
	// does not report one.
	Confidence float64
}

// Transcriber is the abstraction over any batch STT backend.
//
// Transcribe blocks until the backend produces a result, fails, or ctx is
// cancelled. A successful call returns a non-empty transcript; an empty or
// low-confidence recognition returns [ErrNoSpeech]. Any other error is a
// backend failure (transport, auth, quota) and may be retried with identical
// parameters.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// MIMESupporter is implemented by backends whose decodable input set is
// narrower than the upload set. SupportsMIME reports whether the backend can
// decode the given MIME type as-is; when it returns false the caller must
// transcode to canonical WAV before calling Transcribe.
type MIMESupporter interface {
	SupportsMIME(mimeType string) bool
}

// Stager is implemented by backends that read audio from external object
// storage. Callers that retry recognition over the same bytes call Stage
// once, pass the returned URI via [Request.ObjectURI] on every attempt, and
// call Unstage when the job ends.
type Stager interface {
	Stage(ctx context.Context, audio []byte, mimeType string) (uri string, err error)
	Unstage(ctx context.Context, uri string) error
}

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/lexivox/pkg/provider/stt"
)

// Normalizer converts arbitrary input audio to canonical WAV. Satisfied by
// *audio.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, src []byte, mimeType string) ([]byte, error)
}

// Runner executes planned jobs against the configured backends.
type Runner struct {
	sync       stt.Transcriber
	long       stt.Transcriber
	normalizer Normalizer
}

// NewRunner wires the two backends and the normalizer.
func NewRunner(sync, long stt.Transcriber, normalizer Normalizer) *Runner {
	return &Runner{sync: sync, long: long, normalizer: normalizer}
}

// ErrBackendUnavailable reports a plan whose backend is not configured, such
// as a long-running job on a deployment without object storage.
var ErrBackendUnavailable = errors.New("transcribe: backend not configured")

// Run fetches no bytes itself; data is the already-downloaded asset. The hint
// list is walked in order: a no-speech result advances to the next hint over
// the same audio, a backend error gets one identical retry before failing the
// job, and exhaustion yields ErrExhausted. Normalization happens at most once
// per job and a normalization failure is terminal. Backends that stage audio
// in object storage stage it once; every hint attempt reuses the same URI.
func (r *Runner) Run(ctx context.Context, job *Job, data []byte) (string, error) {
	backend := r.sync
	if job.Plan.Backend == BackendLongRunning {
		backend = r.long
	}
	if backend == nil {
		return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, job.Plan.Backend)
	}

	mimeType := job.Asset.MIMEType
	normalize := job.Plan.Normalize
	// The plan's normalize decision encodes the default recognizer's native
	// set; a configured backend may be narrower (whisper decodes only WAV).
	if !normalize {
		if ms, ok := backend.(stt.MIMESupporter); ok && !ms.SupportsMIME(mimeType) {
			normalize = true
		}
	}
	if normalize {
		normalized, err := r.normalizer.Normalize(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("transcribe: normalize %q: %w", job.Asset.Filename, err)
		}
		data = normalized
		mimeType = "audio/wav"
	}

	var objectURI string
	if stager, ok := backend.(stt.Stager); ok {
		uri, err := stager.Stage(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("transcribe: stage %q: %w", job.Asset.Filename, err)
		}
		objectURI = uri
		// Cleanup must survive ctx cancellation, so it gets its own context.
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := stager.Unstage(cleanupCtx, uri); err != nil {
				slog.Warn("failed to remove staged audio", "uri", uri, "error", err)
			}
		}()
	}

	for {
		job.begin()
		hint := job.Hint()

		res, err := r.transcribeOnce(ctx, backend, data, objectURI, mimeType, hint)
		if err == nil {
			slog.Info("transcription complete",
				"filename", job.Asset.Filename, "backend", job.Plan.Backend,
				"language", hint, "attempts", job.Attempts())
			return res.Text, nil
		}
		if !errors.Is(err, stt.ErrNoSpeech) {
			return "", fmt.Errorf("transcribe: backend %s: %w", job.Plan.Backend, err)
		}

		slog.Debug("no speech for hint, trying next",
			"filename", job.Asset.Filename, "language", hint)
		if !job.advance() {
			return "", ErrExhausted
		}
	}
}

// transcribeOnce calls the backend, retrying a transport-level failure once.
// No-speech results and context cancellation are never retried.
func (r *Runner) transcribeOnce(ctx context.Context, backend stt.Transcriber, data []byte, objectURI, mimeType, hint string) (stt.Result, error) {
	req := stt.Request{Audio: data, ObjectURI: objectURI, MIMEType: mimeType, Language: hint}

	res, err := backend.Transcribe(ctx, req)
	if err == nil || errors.Is(err, stt.ErrNoSpeech) || ctx.Err() != nil {
		return res, err
	}

	slog.Warn("backend error, retrying once", "language", hint, "error", err)
	return backend.Transcribe(ctx, req)
}

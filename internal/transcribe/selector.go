package transcribe

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/lexivox/pkg/audio"
)

// ErrUnsupportedFormat is returned by Selector.Select for assets that are not
// audio or video at all.
var ErrUnsupportedFormat = errors.New("transcribe: unsupported media format")

// BackendKind selects which transcription backend handles a job.
type BackendKind string

const (
	// BackendSync is the single blocking recognize call, bounded by a hard
	// duration ceiling.
	BackendSync BackendKind = "sync"

	// BackendLongRunning stages the audio to object storage and polls an
	// asynchronous operation.
	BackendLongRunning BackendKind = "long_running"
)

// Plan is the selector's decision for one asset. It is made once, before any
// bytes are fetched, and never re-evaluated mid-job.
type Plan struct {
	// Backend is the chosen backend kind.
	Backend BackendKind

	// Normalize reports whether the audio is transcoded to canonical WAV
	// (mono 16 kHz PCM16) before the backend sees it.
	Normalize bool
}

// Selector decides backend and normalization per asset from configured
// thresholds. The zero value is not usable; use NewSelector.
type Selector struct {
	syncDurationLimit    time.Duration
	asyncBytesCompressed int64
	asyncBytesRaw        int64
}

// NewSelector creates a selector with the given thresholds.
// syncDurationLimit is the duration ceiling of the sync backend.
// asyncBytesCompressed and asyncBytesRaw are the size thresholds used when
// the duration is unknown, for compressed and raw containers respectively.
func NewSelector(syncDurationLimit time.Duration, asyncBytesCompressed, asyncBytesRaw int64) *Selector {
	return &Selector{
		syncDurationLimit:    syncDurationLimit,
		asyncBytesCompressed: asyncBytesCompressed,
		asyncBytesRaw:        asyncBytesRaw,
	}
}

// Select returns the plan for asset. Pure function of the asset metadata and
// the configured thresholds.
func (s *Selector) Select(asset MediaAsset) (Plan, error) {
	if !asset.IsMedia() {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, asset.MIMEType)
	}

	if s.longRunning(asset) {
		// The long-running backend only accepts the canonical LINEAR16
		// staging format, so normalization is unconditional there.
		return Plan{Backend: BackendLongRunning, Normalize: true}, nil
	}
	// Normalize here covers the cloud recognizer's native set; the runner
	// upgrades it when the configured backend decodes fewer formats.
	return Plan{Backend: BackendSync, Normalize: audio.NeedsNormalize(asset.MIMEType)}, nil
}

// longRunning applies the duration rule, falling back to the size rule when
// the duration is unknown.
func (s *Selector) longRunning(asset MediaAsset) bool {
	if asset.Duration > 0 {
		return asset.Duration > s.syncDurationLimit
	}
	threshold := s.asyncBytesRaw
	if asset.IsCompressed() {
		threshold = s.asyncBytesCompressed
	}
	return asset.SizeBytes > threshold
}

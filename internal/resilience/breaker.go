// Package resilience provides the failover primitives for synthesis engines.
//
// [Breaker] is a small circuit breaker: it opens after a run of consecutive
// failures, rejects calls for a cooldown period, then lets a single probe call
// through. [SynthChain] composes named TTS engines with per-engine breakers so
// a failing engine is bypassed in favour of its configured fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker rejects
// calls.
var ErrBreakerOpen = errors.New("breaker is open")

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker rejects calls before letting a probe
	// through. Default: 30s.
	Cooldown time.Duration
}

// Breaker rejects calls after repeated failures so a broken engine does not
// delay every playback request behind its timeout.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	open     bool
	probing  bool
	failures int
	openedAt time.Time
}

// NewBreaker creates a [Breaker]. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Execute runs fn unless the breaker is open. After the cooldown a single
// probe call is allowed; its outcome decides whether the breaker closes or
// re-opens.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
		slog.Info("breaker probing after cooldown", "name", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil {
		b.failures++
		if b.open || b.failures >= b.maxFailures {
			if !b.open {
				slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
			}
			b.open = true
			b.openedAt = time.Now()
		}
		return err
	}

	if b.open {
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.open = false
	b.failures = 0
	return nil
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker closed and clears the failure counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.probing = false
	b.failures = 0
}

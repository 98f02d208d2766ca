package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// ErrAllEnginesFailed is returned when every engine in a [SynthChain] fails,
// has an open breaker, or is not registered.
var ErrAllEnginesFailed = errors.New("all synthesis engines failed")

// Compile-time interface assertion.
var _ tts.Synthesizer = (*SynthChain)(nil)

// SynthChain implements [tts.Synthesizer] with failover across named engines.
// The engine order is re-read on every call, so a configuration reload that
// changes the active engine takes effect for subsequent requests without
// touching in-flight ones. Each engine gets its own breaker.
type SynthChain struct {
	registry *tts.Registry
	engines  func() []string
	cfg      BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSynthChain creates a chain over registry. engines returns the engine
// names to try in order; it is called once per Synthesize.
func NewSynthChain(registry *tts.Registry, engines func() []string, cfg BreakerConfig) *SynthChain {
	return &SynthChain{
		registry: registry,
		engines:  engines,
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Synthesize tries each configured engine in order until one returns a clip.
func (sc *SynthChain) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	names := sc.engines()
	if len(names) == 0 {
		return tts.Clip{}, fmt.Errorf("%w: no engines configured", ErrAllEnginesFailed)
	}

	var lastErr error
	for _, name := range names {
		engine, err := sc.registry.Get(name)
		if err != nil {
			slog.Warn("skipping unregistered synthesis engine", "engine", name)
			lastErr = err
			continue
		}

		var clip tts.Clip
		err = sc.breaker(name).Execute(func() error {
			var synthErr error
			clip, synthErr = engine.Synthesize(ctx, req)
			return synthErr
		})
		if err == nil {
			return clip, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping synthesis engine (breaker open)", "engine", name)
		} else {
			slog.Warn("synthesis engine failed, trying next", "engine", name, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return tts.Clip{}, fmt.Errorf("%w: %v", ErrAllEnginesFailed, lastErr)
}

// breaker returns the breaker for name, creating it on first use.
func (sc *SynthChain) breaker(name string) *Breaker {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	b, ok := sc.breakers[name]
	if !ok {
		cfg := sc.cfg
		cfg.Name = name
		b = NewBreaker(cfg)
		sc.breakers[name] = b
	}
	return b
}

// Package playback runs the per-voice-channel TTS queues.
//
// Each voice channel gets its own worker goroutine and FIFO queue, so
// playback within a channel is strictly serialized while independent
// channels progress concurrently. The voice connection is dialed lazily on
// the first request and torn down after an idle period; a failed request is
// reported and skipped, never blocking the rest of the queue.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lexivox/pkg/provider/tts"
)

// ErrQueueFull is returned by Enqueue when a channel's queue is at capacity.
var ErrQueueFull = errors.New("playback: queue is full")

// ErrClosed is returned by Enqueue after the manager shuts down.
var ErrClosed = errors.New("playback: manager is closed")

// Request is one utterance to play in a voice channel.
type Request struct {
	// GuildID and ChannelID identify the target voice channel.
	GuildID   string
	ChannelID string

	// Text is what to speak.
	Text string

	// Language biases voice selection in the synthesis engine.
	Language string

	// RequesterID is the user who asked for playback.
	RequesterID string
}

// Conn is an established voice connection that can play one clip at a time.
type Conn interface {
	// Play blocks until the clip has been streamed or ctx is cancelled.
	Play(ctx context.Context, clip tts.Clip) error

	// Close leaves the voice channel.
	Close() error
}

// Dialer joins a voice channel. Implemented over discordgo in production and
// faked in tests.
type Dialer func(ctx context.Context, guildID, channelID string) (Conn, error)

// queue is the state for one voice channel's worker.
type queue struct {
	requests chan Request
	closed   bool
}

// Manager owns all channel queues. Safe for concurrent use.
type Manager struct {
	dial        Dialer
	synth       tts.Synthesizer
	idleTimeout time.Duration
	queueSize   int
	onError     func(Request, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	queues  map[string]*queue
	playing map[string]Request
	closed  bool
}

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithIdleTimeout sets how long a connection lingers in an empty channel
// before the bot leaves. Defaults to 3m.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithQueueSize caps the number of waiting requests per channel. Defaults
// to 32.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// OnError registers a callback invoked (on the worker goroutine) when a
// request fails to synthesize or play. The queue advances regardless.
func OnError(fn func(Request, error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// NewManager creates a manager that synthesizes via synth and connects via
// dial. synth is typically a resilience.SynthChain so engine failover and
// hot engine reconfiguration apply per request.
func NewManager(dial Dialer, synth tts.Synthesizer, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dial:        dial,
		synth:       synth,
		idleTimeout: 3 * time.Minute,
		queueSize:   32,
		ctx:         ctx,
		cancel:      cancel,
		queues:      make(map[string]*queue),
		playing:     make(map[string]Request),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Enqueue appends req to its channel's queue, starting a worker (and later a
// voice connection) if the channel has none. Returns immediately; playback
// happens on the worker goroutine.
func (m *Manager) Enqueue(req Request) error {
	if req.ChannelID == "" || req.Text == "" {
		return fmt.Errorf("playback: request needs channel id and text")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	q, ok := m.queues[req.ChannelID]
	if !ok || q.closed {
		q = &queue{requests: make(chan Request, m.queueSize)}
		m.queues[req.ChannelID] = q
		m.wg.Add(1)
		go m.run(req.GuildID, req.ChannelID, q)
	}

	select {
	case q.requests <- req:
		return nil
	default:
		return fmt.Errorf("%w: channel %s", ErrQueueFull, req.ChannelID)
	}
}

// CurrentlyPlaying returns the request being played in the channel, if any.
func (m *Manager) CurrentlyPlaying(channelID string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.playing[channelID]
	return req, ok
}

// QueueLen returns the number of requests waiting (not playing) in the
// channel's queue.
func (m *Manager) QueueLen(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[channelID]; ok && !q.closed {
		return len(q.requests)
	}
	return 0
}

// Close tears down every queue and waits for the workers to leave their
// channels.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// run is the per-channel worker. It owns the channel's voice connection.
func (m *Manager) run(guildID, channelID string, q *queue) {
	defer m.wg.Done()

	var conn Conn
	defer func() {
		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Warn("leaving voice channel failed", "channel_id", channelID, "error", err)
			}
		}
	}()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-q.requests:
			conn = m.serve(conn, req)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)

		case <-idle.C:
			m.mu.Lock()
			if len(q.requests) > 0 {
				// A request slipped in while the timer fired.
				m.mu.Unlock()
				idle.Reset(m.idleTimeout)
				continue
			}
			q.closed = true
			delete(m.queues, channelID)
			m.mu.Unlock()
			slog.Debug("voice connection idle, leaving", "channel_id", channelID)
			return

		case <-m.ctx.Done():
			m.mu.Lock()
			q.closed = true
			delete(m.queues, channelID)
			m.mu.Unlock()
			return
		}
	}
}

// serve synthesizes and plays one request. It returns the (possibly newly
// dialed) connection; failures are reported and the request is skipped.
func (m *Manager) serve(conn Conn, req Request) Conn {
	m.mu.Lock()
	m.playing[req.ChannelID] = req
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.playing, req.ChannelID)
		m.mu.Unlock()
	}()

	clip, err := m.synth.Synthesize(m.ctx, tts.Request{Text: req.Text, Language: req.Language})
	if err != nil {
		m.fail(req, fmt.Errorf("synthesize: %w", err))
		return conn
	}

	if conn == nil {
		conn, err = m.dial(m.ctx, req.GuildID, req.ChannelID)
		if err != nil {
			m.fail(req, fmt.Errorf("join voice channel: %w", err))
			return nil
		}
	}

	if err := conn.Play(m.ctx, clip); err != nil {
		m.fail(req, fmt.Errorf("play: %w", err))
	}
	return conn
}

func (m *Manager) fail(req Request, err error) {
	slog.Warn("playback request failed",
		"channel_id", req.ChannelID, "requester_id", req.RequesterID, "error", err)
	if m.onError != nil {
		m.onError(req, err)
	}
}

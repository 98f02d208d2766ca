// Package orchestrator routes Discord gateway events into the Lexivox
// pipelines: audio uploads become language panels and transcription jobs,
// image uploads run through OCR and translation, text in TTS rooms is queued
// for voice playback, and prefix commands report status. Every per-message
// failure is isolated and answered with a terminal reply.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/lexivox/internal/config"
	"github.com/MrWong99/lexivox/internal/discord"
	"github.com/MrWong99/lexivox/internal/observe"
	"github.com/MrWong99/lexivox/internal/panel"
	"github.com/MrWong99/lexivox/internal/playback"
	"github.com/MrWong99/lexivox/internal/quota"
	"github.com/MrWong99/lexivox/internal/transcribe"
	"github.com/MrWong99/lexivox/internal/translate"
)

// Quota resource names. Scopes are "guild:<id>" for per-guild resources and
// "global" for shared ones.
const (
	resourceOCR            = "ocr"
	resourceTranslateChars = "translate_chars"
	scopeGlobal            = "global"
)

// Player is the slice of the playback manager the orchestrator uses.
type Player interface {
	Enqueue(req playback.Request) error
	CurrentlyPlaying(channelID string) (playback.Request, bool)
	QueueLen(channelID string) int
}

// TextDetector extracts text from an image. Satisfied by *ocr.Client.
type TextDetector interface {
	Detect(ctx context.Context, image []byte) (string, error)
}

// Deps bundles the orchestrator's collaborators. Messenger, Selector, Runner
// and Player are required; the rest disable their flow when nil.
type Deps struct {
	Messenger Messenger
	Fetch     Fetcher
	Selector  *transcribe.Selector
	Runner    *transcribe.Runner
	Player    Player
	Quotas    quota.Store
	Detector  TextDetector

	// Translators maps engine name ("google", "llm") to its engine.
	Translators map[string]translate.Engine

	Metrics *observe.Metrics

	// VoiceChannelOf resolves the voice channel a user is currently in.
	VoiceChannelOf func(guildID, userID string) (string, bool)
}

// pendingAsset holds the planned job between panel creation and selection.
type pendingAsset struct {
	asset transcribe.MediaAsset
	plan  transcribe.Plan
}

// Orchestrator glues the event stream to the pipelines.
type Orchestrator struct {
	msgr     Messenger
	fetch    Fetcher
	selector *transcribe.Selector
	runner   *transcribe.Runner
	panels   *panel.Store
	player   Player
	quotas   quota.Store
	detector TextDetector
	metrics  *observe.Metrics
	voiceOf  func(guildID, userID string) (string, bool)

	translators map[string]translate.Engine

	// Hot-reloadable state. Reads happen per event, so a config change only
	// affects events dispatched after ApplyConfigChange returns.
	mu              sync.RWMutex
	rooms           map[string]config.RoomMode
	engineOrder     []string
	translateEngine string

	pendingMu sync.Mutex
	pending   map[string]pendingAsset
}

// New wires an Orchestrator from its collaborators and the initial config.
// The language panel store is owned here so expiry can clean up both the
// panel UI message and the pending asset.
func New(deps Deps, cfg *config.Config) *Orchestrator {
	o := &Orchestrator{
		msgr:            deps.Messenger,
		fetch:           deps.Fetch,
		selector:        deps.Selector,
		runner:          deps.Runner,
		player:          deps.Player,
		quotas:          deps.Quotas,
		detector:        deps.Detector,
		translators:     deps.Translators,
		metrics:         deps.Metrics,
		voiceOf:         deps.VoiceChannelOf,
		rooms:           cfg.Rooms,
		engineOrder:     append([]string{cfg.Playback.Engine}, cfg.Playback.Fallbacks...),
		translateEngine: cfg.Translate.Engine,
		pending:         make(map[string]pendingAsset),
	}
	if o.fetch == nil {
		o.fetch = HTTPFetcher()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.quotas == nil {
		o.quotas = quota.NewMemoryStore(nil)
	}
	if o.voiceOf == nil {
		o.voiceOf = func(string, string) (string, bool) { return "", false }
	}
	o.panels = panel.NewStore(
		panel.WithTimeout(cfg.Panel.Timeout),
		panel.OnExpire(o.panelExpired),
	)
	return o
}

// Register hooks the orchestrator's handlers into the event router.
func (o *Orchestrator) Register(r *discord.Router) {
	r.RegisterComponentPrefix("stt_lang", o.HandleComponent)
	r.RegisterComponentPrefix(playButtonPrefix, o.HandlePlayButton)
	r.RegisterCommand("status", o.StatusCommand)
	r.RegisterCommand("translate", o.TranslateCommand)
	r.RegisterMessage(o.HandleMessage)
}

// Panels exposes the panel store for observability.
func (o *Orchestrator) Panels() *panel.Store {
	return o.panels
}

// EngineOrder returns the current synthesis engine preference, default
// first. Handed to the synthesis fallback chain, which re-reads it per
// request, so mid-queue engine switches only affect later requests.
func (o *Orchestrator) EngineOrder() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.engineOrder))
	copy(out, o.engineOrder)
	return out
}

// roomMode returns the configured mode for a channel. Channels without an
// entry default to transcribe.
func (o *Orchestrator) roomMode(channelID string) config.RoomMode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mode, ok := o.rooms[channelID]; ok {
		return mode
	}
	return config.RoomModeTranscribe
}

// translator returns the currently selected translation engine.
func (o *Orchestrator) translator() (translate.Engine, string, bool) {
	o.mu.RLock()
	name := o.translateEngine
	o.mu.RUnlock()
	eng, ok := o.translators[name]
	return eng, name, ok
}

// ApplyConfigChange applies a hot-reload diff. Only subsequent events see
// the new values.
func (o *Orchestrator) ApplyConfigChange(d config.ConfigDiff) {
	if d.LogLevelChanged {
		slog.SetLogLoggerLevel(logLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if d.PlaybackEngineChanged {
		order := append([]string{d.NewPlaybackEngine}, o.engineOrder...)
		o.engineOrder = dedupe(order)
		slog.Info("playback engine changed", "engine", d.NewPlaybackEngine)
	}
	if d.TranslateEngineChanged {
		if _, ok := o.translators[d.NewTranslateEngine]; ok {
			o.translateEngine = d.NewTranslateEngine
			slog.Info("translate engine changed", "engine", d.NewTranslateEngine)
		} else {
			slog.Warn("translate engine not configured, keeping current",
				"requested", d.NewTranslateEngine, "current", o.translateEngine)
		}
	}
	if d.RoomsChanged {
		o.rooms = d.NewRooms
		slog.Info("room modes changed", "rooms", len(d.NewRooms))
	}
}

// Close releases panel timers.
func (o *Orchestrator) Close() {
	o.panels.Close()
}

// logLevel maps the config enum to slog levels.
func logLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dedupe removes later duplicates preserving order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

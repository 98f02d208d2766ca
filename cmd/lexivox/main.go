// Command lexivox is the main entry point for the Lexivox Discord assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lexivox/internal/config"
	discordbot "github.com/MrWong99/lexivox/internal/discord"
	"github.com/MrWong99/lexivox/internal/health"
	"github.com/MrWong99/lexivox/internal/observe"
	"github.com/MrWong99/lexivox/internal/ocr"
	"github.com/MrWong99/lexivox/internal/orchestrator"
	"github.com/MrWong99/lexivox/internal/playback"
	"github.com/MrWong99/lexivox/internal/quota"
	"github.com/MrWong99/lexivox/internal/resilience"
	"github.com/MrWong99/lexivox/internal/transcribe"
	"github.com/MrWong99/lexivox/internal/translate"
	"github.com/MrWong99/lexivox/pkg/audio"
	"github.com/MrWong99/lexivox/pkg/provider/storage/gcs"
	"github.com/MrWong99/lexivox/pkg/provider/stt"
	"github.com/MrWong99/lexivox/pkg/provider/stt/googlelro"
	"github.com/MrWong99/lexivox/pkg/provider/stt/googlesync"
	"github.com/MrWong99/lexivox/pkg/provider/stt/whisper"
	"github.com/MrWong99/lexivox/pkg/provider/tts"
	"github.com/MrWong99/lexivox/pkg/provider/tts/edge"
	"github.com/MrWong99/lexivox/pkg/provider/tts/gtranslate"
	openaitts "github.com/MrWong99/lexivox/pkg/provider/tts/openai"
)

// cloudPlatformScope is the OAuth scope for the Speech LRO and GCS APIs.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A local .env is convenient during development; absence is fine.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lexivox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lexivox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("lexivox starting",
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "lexivox",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Transcription backends ────────────────────────────────────────────────
	normalizer := &audio.Normalizer{}

	syncT, err := newSyncTranscriber(cfg)
	if err != nil {
		slog.Error("failed to build synchronous transcriber", "err", err)
		return 1
	}
	longT, err := newLongTranscriber(ctx, cfg)
	if err != nil {
		slog.Error("failed to build long-running transcriber", "err", err)
		return 1
	}
	if longT == nil {
		slog.Warn("no object storage configured, assets above the sync ceiling will be rejected")
	}

	selector := transcribe.NewSelector(
		cfg.Transcribe.SyncDurationLimit,
		cfg.Transcribe.AsyncBytesCompressed,
		cfg.Transcribe.AsyncBytesRaw,
	)
	runner := transcribe.NewRunner(syncT, longT, normalizer)

	// ── Synthesis engines ─────────────────────────────────────────────────────
	var registry tts.Registry
	registry.Register("gtranslate", gtranslate.New())
	registry.Register("edge", edge.New())
	if cfg.Playback.OpenAIAPIKey != "" {
		oa, err := openaitts.New(cfg.Playback.OpenAIAPIKey)
		if err != nil {
			slog.Error("failed to build openai synthesizer", "err", err)
			return 1
		}
		registry.Register("openai", oa)
	}

	// ── Quotas ────────────────────────────────────────────────────────────────
	var store quota.Store
	if dsn := cfg.Quota.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()
		store = quota.NewPostgresStore(pool, cfg.Quota.Limits)
		slog.Info("quota store: postgres")
	} else {
		store = quota.NewMemoryStore(cfg.Quota.Limits)
		slog.Info("quota store: in-memory", "note", "counters reset on restart")
	}
	quotas := quota.NewGuard(store, cfg.Quota.FailMode)

	// ── Translation engines ───────────────────────────────────────────────────
	translators, err := newTranslators(cfg)
	if err != nil {
		slog.Error("failed to build translation engines", "err", err)
		return 1
	}

	// ── OCR ───────────────────────────────────────────────────────────────────
	var detector orchestrator.TextDetector
	if cfg.OCR.GoogleAPIKey != "" {
		detector, err = ocr.New(cfg.OCR.GoogleAPIKey)
		if err != nil {
			slog.Error("failed to build ocr client", "err", err)
			return 1
		}
	} else {
		slog.Warn("no ocr api key configured, image reading disabled")
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(discordbot.Config{
		Token:         cfg.Discord.Token,
		GuildID:       cfg.Discord.GuildID,
		CommandPrefix: cfg.Discord.CommandPrefix,
	})
	if err != nil {
		slog.Error("failed to create discord bot", "err", err)
		return 1
	}

	// ── Playback ──────────────────────────────────────────────────────────────
	// The synthesis chain re-reads the engine order from the orchestrator per
	// request so hot reloads take effect, which makes the wiring circular:
	// fall back to the static config order until the orchestrator exists.
	var orch *orchestrator.Orchestrator
	engineOrder := func() []string {
		if orch == nil {
			return append([]string{cfg.Playback.Engine}, cfg.Playback.Fallbacks...)
		}
		return orch.EngineOrder()
	}
	chain := resilience.NewSynthChain(&registry, engineOrder, resilience.BreakerConfig{Name: "tts"})

	dialer := playback.NewDiscordDialer(bot.Session(), normalizer)
	manager := playback.NewManager(dialer, chain, playback.WithIdleTimeout(cfg.Playback.IdleTimeout))
	defer manager.Close()

	// ── Orchestrator ──────────────────────────────────────────────────────────
	orch = orchestrator.New(orchestrator.Deps{
		Messenger:   orchestrator.NewSessionMessenger(bot.Session()),
		Selector:    selector,
		Runner:      runner,
		Player:      manager,
		Quotas:      quotas,
		Detector:    detector,
		Translators: translators,
		Metrics:     metrics,
		VoiceChannelOf: func(guildID, userID string) (string, bool) {
			vs, err := bot.Session().State.VoiceState(guildID, userID)
			if err != nil || vs == nil {
				return "", false
			}
			return vs.ChannelID, true
		},
	}, cfg)
	defer orch.Close()
	orch.Register(bot.Router())

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		orch.ApplyConfigChange(config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bot.Run(gctx)
	})

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.Checker{Name: "discord", Check: func(context.Context) error {
				if bot.Session().State.User == nil {
					return errors.New("gateway not connected")
				}
				return nil
			}},
			health.Checker{Name: "quota", Check: func(ctx context.Context) error {
				_, err := quotas.Usage(ctx, "global", "translate_chars")
				return err
			}},
		).Register(mux)
		srv := &http.Server{
			Addr:              addr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("lexivox ready, press Ctrl+C to shut down")

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	if cerr := bot.Close(); cerr != nil {
		slog.Warn("discord bot close error", "err", cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newSyncTranscriber picks the synchronous speech backend: a local
// whisper.cpp model when one is configured, the Google speech:recognize
// endpoint otherwise.
func newSyncTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	if path := cfg.Transcribe.WhisperModelPath; path != "" {
		return whisper.New(path)
	}
	if key := cfg.Transcribe.GoogleAPIKey; key != "" {
		return googlesync.New(key)
	}
	return nil, errors.New("no speech backend configured: set transcribe.whisper_model_path or transcribe.google_api_key")
}

// newLongTranscriber builds the long-running recognition backend, staging
// audio in GCS. Returns nil when no bucket is configured.
func newLongTranscriber(ctx context.Context, cfg *config.Config) (stt.Transcriber, error) {
	bucket := cfg.Storage.GCSBucket
	if bucket == "" {
		return nil, nil
	}
	tokens, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	blobs, err := gcs.New(bucket, tokens)
	if err != nil {
		return nil, err
	}
	var opts []googlelro.Option
	if p := cfg.Storage.Prefix; p != "" {
		opts = append(opts, googlelro.WithObjectPrefix(p))
	}
	if d := cfg.Transcribe.PollTimeout; d > 0 {
		opts = append(opts, googlelro.WithPollTimeout(d))
	}
	return googlelro.New(tokens, blobs, opts...)
}

// newTranslators builds every translation engine the config has credentials
// for. The orchestrator picks the active one by name.
func newTranslators(cfg *config.Config) (map[string]translate.Engine, error) {
	engines := make(map[string]translate.Engine)
	if key := cfg.Translate.GoogleAPIKey; key != "" {
		eng, err := translate.NewGoogleEngine(key)
		if err != nil {
			return nil, err
		}
		engines["google"] = eng
	}
	if cfg.Translate.LLMProvider != "" && cfg.Translate.LLMModel != "" {
		var opts []anyllmlib.Option
		if key := cfg.Translate.LLMAPIKey; key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
		eng, err := translate.NewLLMEngine(cfg.Translate.LLMProvider, cfg.Translate.LLMModel, opts...)
		if err != nil {
			return nil, err
		}
		engines["llm"] = eng
	}
	return engines, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

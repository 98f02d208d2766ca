package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default thresholds and lifecycle durations applied by [ApplyDefaults].
const (
	DefaultSyncDurationLimit    = 5 * time.Minute
	DefaultAsyncBytesCompressed = int64(18 * 1024 * 1024 / 10) // 1.8 MiB
	DefaultAsyncBytesRaw        = int64(9 * 1024 * 1024)
	DefaultPollTimeout          = 15 * time.Minute
	DefaultPanelTimeout         = 60 * time.Second
	DefaultIdleTimeout          = 3 * time.Minute
	DefaultCommandPrefix        = "!"
	DefaultStoragePrefix        = "discord_uploads/"
)

// Default daily quota limits per resource kind.
var DefaultQuotaLimits = map[string]int64{
	"ocr":             30,
	"translate_chars": 15000,
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. ${VAR} references in string values are
// expanded from the environment before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})
	cfg, err := LoadFromReader(strings.NewReader(expanded))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.Transcribe.SyncDurationLimit <= 0 {
		cfg.Transcribe.SyncDurationLimit = DefaultSyncDurationLimit
	}
	if cfg.Transcribe.AsyncBytesCompressed <= 0 {
		cfg.Transcribe.AsyncBytesCompressed = DefaultAsyncBytesCompressed
	}
	if cfg.Transcribe.AsyncBytesRaw <= 0 {
		cfg.Transcribe.AsyncBytesRaw = DefaultAsyncBytesRaw
	}
	if cfg.Transcribe.PollTimeout <= 0 {
		cfg.Transcribe.PollTimeout = DefaultPollTimeout
	}
	if cfg.Panel.Timeout <= 0 {
		cfg.Panel.Timeout = DefaultPanelTimeout
	}
	if cfg.Playback.IdleTimeout <= 0 {
		cfg.Playback.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Playback.Engine == "" {
		cfg.Playback.Engine = "gtranslate"
	}
	if cfg.Translate.Engine == "" {
		if cfg.Translate.LLMProvider != "" {
			cfg.Translate.Engine = "llm"
		} else {
			cfg.Translate.Engine = "google"
		}
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = DefaultStoragePrefix
	}
	if cfg.Quota.FailMode == "" {
		cfg.Quota.FailMode = QuotaFailClosed
	}
	if cfg.Quota.Limits == nil {
		cfg.Quota.Limits = make(map[string]int64)
	}
	for resource, limit := range DefaultQuotaLimits {
		if _, ok := cfg.Quota.Limits[resource]; !ok {
			cfg.Quota.Limits[resource] = limit
		}
	}
}

// validEngineNames lists known engine names per concern. Used by [Validate] to
// warn about unrecognised names.
var validEngineNames = map[string][]string{
	"playback":  {"gtranslate", "edge", "openai"},
	"translate": {"google", "llm"},
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	if !cfg.Quota.FailMode.IsValid() {
		errs = append(errs, fmt.Errorf("quota.fail_mode %q is invalid; valid values: open, closed", cfg.Quota.FailMode))
	}
	for resource, limit := range cfg.Quota.Limits {
		if limit < 0 {
			errs = append(errs, fmt.Errorf("quota.limits[%q] must not be negative, got %d", resource, limit))
		}
	}

	validateEngineName("playback", cfg.Playback.Engine)
	for _, name := range cfg.Playback.Fallbacks {
		validateEngineName("playback", name)
	}
	validateEngineName("translate", cfg.Translate.Engine)

	if cfg.Translate.Engine == "llm" && cfg.Translate.LLMProvider == "" {
		errs = append(errs, errors.New("translate.engine \"llm\" requires translate.llm_provider"))
	}
	if cfg.Translate.Engine == "google" && cfg.Translate.GoogleAPIKey == "" {
		slog.Warn("translate.engine is \"google\" but translate.google_api_key is empty; translation will be unavailable")
	}

	if cfg.Transcribe.GoogleAPIKey == "" && cfg.Transcribe.WhisperModelPath == "" {
		slog.Warn("no transcription backend configured; audio uploads will be ignored")
	}
	if cfg.Transcribe.GoogleAPIKey != "" && cfg.Storage.GCSBucket == "" {
		slog.Warn("storage.gcs_bucket is empty; long assets cannot use the long-running transcription path")
	}

	for channelID, mode := range cfg.Rooms {
		if !mode.IsValid() {
			errs = append(errs, fmt.Errorf("rooms[%q] mode %q is invalid; valid values: tts, transcribe", channelID, mode))
		}
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is non-empty and not found in the
// validEngineNames list for the given concern.
func validateEngineName(concern, name string) {
	if name == "" {
		return
	}
	for _, known := range validEngineNames[concern] {
		if name == known {
			return
		}
	}
	slog.Warn("unknown engine name, may be a typo",
		"concern", concern,
		"name", name,
		"known", validEngineNames[concern],
	)
}

// Package config provides the configuration schema, loader, and validation
// for the Lexivox transcription assistant.
package config

import "time"

// LogLevel controls log verbosity for the Lexivox process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QuotaFailMode decides how quota checks behave when the quota store is
// unreachable.
type QuotaFailMode string

const (
	// QuotaFailOpen allows the metered call when the store cannot be reached.
	QuotaFailOpen QuotaFailMode = "open"

	// QuotaFailClosed denies the metered call when the store cannot be reached.
	QuotaFailClosed QuotaFailMode = "closed"
)

// IsValid reports whether m is a recognised fail mode.
func (m QuotaFailMode) IsValid() bool {
	return m == QuotaFailOpen || m == QuotaFailClosed
}

// RoomMode selects per-channel automatic behaviour.
type RoomMode string

const (
	// RoomModeTTS reads every plain text message in the channel aloud in the
	// author's voice channel.
	RoomModeTTS RoomMode = "tts"

	// RoomModeTranscribe offers a language panel for every audio upload.
	// This is also the default for channels with no room entry.
	RoomModeTranscribe RoomMode = "transcribe"
)

// IsValid reports whether r is a recognised room mode.
func (r RoomMode) IsValid() bool {
	return r == RoomModeTTS || r == RoomModeTranscribe
}

// Config is the root configuration structure for Lexivox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Discord    DiscordConfig       `yaml:"discord"`
	Transcribe TranscribeConfig    `yaml:"transcribe"`
	Panel      PanelConfig         `yaml:"panel"`
	Playback   PlaybackConfig      `yaml:"playback"`
	Translate  TranslateConfig     `yaml:"translate"`
	OCR        OCRConfig           `yaml:"ocr"`
	Storage    StorageConfig       `yaml:"storage"`
	Quota      QuotaConfig         `yaml:"quota"`
	Rooms      map[string]RoomMode `yaml:"rooms"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address serving the Prometheus /metrics endpoint
	// (e.g., ":9102"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds Discord gateway settings.
type DiscordConfig struct {
	// Token is the Discord bot token. ${VAR} references are expanded from the
	// environment at load time.
	Token string `yaml:"token"`

	// GuildID restricts the bot to a single guild when set.
	GuildID string `yaml:"guild_id"`

	// CommandPrefix is the prefix for text commands such as "!status".
	// Defaults to "!".
	CommandPrefix string `yaml:"command_prefix"`
}

// TranscribeConfig selects the transcription backends and the strategy
// thresholds that route an asset to the sync or the long-running path.
type TranscribeConfig struct {
	// GoogleAPIKey authenticates the synchronous speech:recognize endpoint.
	GoogleAPIKey string `yaml:"google_api_key"`

	// SyncDurationLimit is the maximum asset duration handled by the
	// synchronous backend. Longer assets go to the long-running path.
	// Defaults to 5m.
	SyncDurationLimit time.Duration `yaml:"sync_duration_limit"`

	// AsyncBytesCompressed is the size threshold for compressed containers
	// (mp3, m4a, ogg, opus, webm, mp4) when the duration is unknown.
	// Defaults to 1.8 MiB.
	AsyncBytesCompressed int64 `yaml:"async_bytes_compressed"`

	// AsyncBytesRaw is the size threshold for everything else when the
	// duration is unknown. Defaults to 9 MiB.
	AsyncBytesRaw int64 `yaml:"async_bytes_raw"`

	// PollTimeout bounds long-running recognition polling wall-clock time.
	// Defaults to 15m.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// WhisperModelPath enables the local whisper.cpp backend as the sync
	// transcriber instead of the Google endpoint when set.
	WhisperModelPath string `yaml:"whisper_model_path"`
}

// PanelConfig controls the language disambiguation panel lifecycle.
type PanelConfig struct {
	// Timeout is how long a panel waits for a selection before expiring.
	// Defaults to 60s.
	Timeout time.Duration `yaml:"timeout"`
}

// PlaybackConfig controls the per-channel voice playback queues.
type PlaybackConfig struct {
	// Engine is the default synthesis engine name ("gtranslate", "edge",
	// "openai"). Defaults to "gtranslate".
	Engine string `yaml:"engine"`

	// Fallbacks lists engines tried in order when the selected engine fails.
	Fallbacks []string `yaml:"fallbacks"`

	// IdleTimeout is how long a voice connection survives with an empty
	// queue before disconnecting. Defaults to 3m.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// OpenAIAPIKey authenticates the OpenAI synthesis engine, if used.
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

// TranslateConfig selects the translation engine.
type TranslateConfig struct {
	// Engine is "google" or "llm". Defaults to "llm" when an LLM provider is
	// configured, otherwise "google".
	Engine string `yaml:"engine"`

	// GoogleAPIKey authenticates the Google Translate v2 endpoint.
	GoogleAPIKey string `yaml:"google_api_key"`

	// LLMProvider is the any-llm provider name (e.g., "openai").
	LLMProvider string `yaml:"llm_provider"`

	// LLMModel is the model identifier for the LLM engine.
	LLMModel string `yaml:"llm_model"`

	// LLMAPIKey authenticates the LLM provider.
	LLMAPIKey string `yaml:"llm_api_key"`
}

// OCRConfig configures the Google Vision text detection client.
type OCRConfig struct {
	// GoogleAPIKey authenticates the images:annotate endpoint.
	GoogleAPIKey string `yaml:"google_api_key"`
}

// StorageConfig configures the object store used to stage audio for the
// long-running transcription path.
type StorageConfig struct {
	// GCSBucket is the bucket receiving staged audio blobs.
	GCSBucket string `yaml:"gcs_bucket"`

	// Prefix is the object name prefix for staged blobs.
	// Defaults to "discord_uploads/".
	Prefix string `yaml:"prefix"`
}

// QuotaConfig configures the shared usage counters for metered calls.
type QuotaConfig struct {
	// PostgresDSN is the connection string for the quota counter table.
	// Empty selects the in-process store (single-instance deployments only).
	PostgresDSN string `yaml:"postgres_dsn"`

	// FailMode decides behaviour when the store is unreachable.
	// Defaults to "closed".
	FailMode QuotaFailMode `yaml:"fail_mode"`

	// Limits maps resource kind to its daily limit. Defaults:
	// ocr 30 per guild, translate_chars 15000 globally.
	Limits map[string]int64 `yaml:"limits"`
}

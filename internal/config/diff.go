package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; threshold or
// credential changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PlaybackEngineChanged reports a new default synthesis engine. In-flight
	// playback requests keep the engine they were synthesised with; only
	// requests dequeued after the reload pick up the new engine.
	PlaybackEngineChanged bool
	NewPlaybackEngine     string

	TranslateEngineChanged bool
	NewTranslateEngine     string

	RoomsChanged bool
	NewRooms     map[string]RoomMode
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Playback.Engine != new.Playback.Engine {
		d.PlaybackEngineChanged = true
		d.NewPlaybackEngine = new.Playback.Engine
	}

	if old.Translate.Engine != new.Translate.Engine {
		d.TranslateEngineChanged = true
		d.NewTranslateEngine = new.Translate.Engine
	}

	if !roomsEqual(old.Rooms, new.Rooms) {
		d.RoomsChanged = true
		d.NewRooms = new.Rooms
	}

	return d
}

func roomsEqual(a, b map[string]RoomMode) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

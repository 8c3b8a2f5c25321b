package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; a session already
// in flight keeps running with whatever it already loaded until its next tick.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoicesChanged bool
	ChaosChanged  bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !voicesEqual(old.Voices, new.Voices) {
		d.VoicesChanged = true
	}

	if old.Chaos != new.Chaos {
		d.ChaosChanged = true
	}

	return d
}

func voicesEqual(a, b map[string]VoiceConfig) bool {
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

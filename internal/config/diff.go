package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PlaybackChanged is true when any playback tunable differs. The new
	// values apply to sessions created after the reload.
	PlaybackChanged bool
	NewPlayback     PlaybackConfig

	// RestartRequired lists top-level sections that changed but are only read
	// at startup.
	RestartRequired []string
}

// Changed reports whether any field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PlaybackChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !samePlayback(old.Playback, new.Playback) {
		d.PlaybackChanged = true
		d.NewPlayback = new.Playback
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameClassifier(old.Classifier, new.Classifier) {
		d.RestartRequired = append(d.RestartRequired, "classifier")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func samePlayback(a, b PlaybackConfig) bool {
	if a.PollInterval != b.PollInterval ||
		a.FrameInterval != b.FrameInterval ||
		a.ScoreAnimation != b.ScoreAnimation ||
		a.TrailingPad != b.TrailingPad {
		return false
	}
	switch {
	case a.Intensity == nil && b.Intensity == nil:
		return true
	case a.Intensity == nil || b.Intensity == nil:
		return false
	}
	return *a.Intensity == *b.Intensity
}

func sameClassifier(a, b ClassifierConfig) bool {
	if !sameEntry(a.ProviderEntry, b.ProviderEntry) ||
		a.WarmupSchedule != b.WarmupSchedule ||
		a.CircuitBreaker != b.CircuitBreaker ||
		len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

// sameEntry ignores Options, which hold arbitrary YAML values.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Credentials == b.Credentials &&
		a.Timeout == b.Timeout
}

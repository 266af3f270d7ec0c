package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the classifier backends that ship with podsync.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"http", "openai", "googlenl", "mock"}

// LoadEnv loads KEY=value pairs from the given dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("env file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("config: load env %q: %w", path, err)
	}
	slog.Debug("env file loaded", "path", path)
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references against the environment, decodes
// the YAML from r, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Classifier.WarmupSchedule == "" {
		cfg.Classifier.WarmupSchedule = DefaultWarmupSchedule
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Playback
	pb := cfg.Playback
	if pb.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.poll_interval %s must not be negative", pb.PollInterval))
	}
	if pb.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.frame_interval %s must not be negative", pb.FrameInterval))
	}
	if pb.ScoreAnimation < 0 {
		errs = append(errs, fmt.Errorf("playback.score_animation %s must not be negative", pb.ScoreAnimation))
	}
	if pb.TrailingPad < 0 {
		errs = append(errs, fmt.Errorf("playback.trailing_pad %.2f must not be negative", pb.TrailingPad))
	}
	if pb.Intensity != nil && (*pb.Intensity < 0 || *pb.Intensity > 1) {
		errs = append(errs, fmt.Errorf("playback.intensity %.2f is out of range [0, 1]", *pb.Intensity))
	}

	// Classifier
	cl := cfg.Classifier
	if cl.Name == "" && len(cl.Fallbacks) > 0 {
		errs = append(errs, errors.New("classifier.name is required when classifier.fallbacks are configured"))
	}
	errs = append(errs, validateEntry("classifier", cl.ProviderEntry)...)
	for i, fb := range cl.Fallbacks {
		prefix := fmt.Sprintf("classifier.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateEntry(prefix, fb)...)
	}
	if cl.WarmupSchedule != "" {
		if _, err := cron.ParseStandard(cl.WarmupSchedule); err != nil {
			errs = append(errs, fmt.Errorf("classifier.warmup_schedule %q is invalid: %w", cl.WarmupSchedule, err))
		}
	}
	if cl.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("classifier.circuit_breaker.max_failures %d must not be negative", cl.CircuitBreaker.MaxFailures))
	}
	if cl.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("classifier.circuit_breaker.reset_timeout %s must not be negative", cl.CircuitBreaker.ResetTimeout))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; projects are kept in memory and lost on restart")
	}

	return errors.Join(errs...)
}

func validateEntry(prefix string, e ProviderEntry) []error {
	if e.Name == "" {
		return nil
	}
	var errs []error
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, e.Timeout))
	}
	switch e.Name {
	case "http":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the http classifier", prefix))
		}
	case "openai":
		if e.APIKey == "" && e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for the openai classifier", prefix))
		}
	}
	validateProviderName(e.Name)
	return errs
}

// validateProviderName logs a warning if name is not one of
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown classifier name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}

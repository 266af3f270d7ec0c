// Command podsync is the main entry point for the podsync transcript sync
// server. It also offers two offline modes: -play for headless terminal
// playback and -export for subtitle conversion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/podsync/internal/app"
	"github.com/MrWong99/podsync/internal/config"
	"github.com/MrWong99/podsync/internal/observe"
	"github.com/MrWong99/podsync/internal/store"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "dotenv file loaded before the configuration")
	playPath := flag.String("play", "", "play a transcript in the terminal instead of serving")
	analyze := flag.Bool("analyze", false, "with -play: classify sentences before playback")
	exportPath := flag.String("export", "", "convert a transcript to subtitles instead of serving")
	format := flag.String("format", "srt", "with -export: output format (srt or vtt)")
	granularity := flag.String("granularity", "sentence", "with -export: cue granularity (sentence or word)")
	outPath := flag.String("out", "", "with -export: output file (default stdout)")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "podsync: %v\n", err)
		return 1
	}

	// ── Offline export ────────────────────────────────────────────────────────
	if *exportPath != "" {
		slog.SetDefault(newLogger(new(slog.LevelVar), config.LogWarn))
		if err := exportTo(*exportPath, *outPath, *format, *granularity); err != nil {
			fmt.Fprintf(os.Stderr, "podsync: export: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	watch := true
	if errors.Is(err, os.ErrNotExist) && *playPath != "" {
		// Playback works without a config file.
		cfg, err = config.LoadFromReader(strings.NewReader(""))
		watch = false
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "podsync: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "podsync: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(level, cfg.Server.LogLevel))

	// ── Provider registry ─────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	// ── Headless playback ─────────────────────────────────────────────────────
	if *playPath != "" {
		if err := play(ctx, cfg, reg, *playPath, *analyze, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "podsync: play: %v\n", err)
			return 1
		}
		return 0
	}

	slog.Info("podsync starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	metrics, err := telemetry.Metrics()
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}
	application, err := app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(ctx, *configPath, func(d config.ConfigDiff, _ *config.Config) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.ApplyConfig(d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// exportTo runs the export to outPath, or stdout when outPath is empty.
func exportTo(in, outPath, format, granularity string) error {
	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return runExport(in, out, format, granularity)
}

// play builds the application without a server and plays path in the
// terminal. Projects stay in memory.
func play(ctx context.Context, cfg *config.Config, reg *config.Registry, path string, analyze bool, out io.Writer) error {
	opts := []app.Option{app.WithStore(store.NewMemStore())}
	if analyze {
		opts = append(opts, app.WithRegistry(reg))
	} else {
		cfg.Classifier.Name = ""
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(sctx)
	}()
	return runPlay(ctx, application.Sessions(), path, analyze, out)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         podsync — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Classifier", cfg.Classifier.Name, cfg.Classifier.Model)
	for i, fb := range cfg.Classifier.Fallbacks {
		printProvider(fmt.Sprintf("Fallback %d", i+1), fb.Name, fb.Model)
	}
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Store           : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Store           : %-19s ║\n", "memory")
	}
	fmt.Printf("║  Warm-up         : %-19s ║\n", truncate(cfg.Classifier.WarmupSchedule))
	fmt.Printf("║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the stderr text logger. level is set from l and can be
// changed later to adjust verbosity without rebuilding the logger.
func newLogger(level *slog.LevelVar, l config.LogLevel) *slog.Logger {
	level.Set(slogLevel(l))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(l config.LogLevel) slog.Level {
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

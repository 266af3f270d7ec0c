// Package app wires all podsync subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API and schedules classifier warm-ups, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithClassifier,
// WithStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/podsync/internal/api"
	"github.com/MrWong99/podsync/internal/config"
	"github.com/MrWong99/podsync/internal/health"
	"github.com/MrWong99/podsync/internal/observe"
	"github.com/MrWong99/podsync/internal/resilience"
	"github.com/MrWong99/podsync/internal/session"
	"github.com/MrWong99/podsync/internal/store"
	"github.com/MrWong99/podsync/pkg/provider/classifier"
)

const (
	// httpShutdownTimeout bounds graceful HTTP shutdown when Run's context ends.
	httpShutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	// Subsystems — initialised in New, torn down in Shutdown.
	classifier     classifier.Provider
	classifierName string
	store          store.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler
	checkers       []health.Checker
	sessions       *session.Manager
	api            *api.Server
	handler        http.Handler
	server         *http.Server

	listenMu sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry sets the registry used to build the configured classifier
// backends.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithClassifier injects a classifier instead of building one from the
// registry.
func WithClassifier(p classifier.Provider, name string) Option {
	return func(a *App) {
		a.classifier = p
		a.classifierName = name
	}
}

// WithStore injects a project store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the Prometheus handler served on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously: classifier construction, store connection
// and migration, session manager and HTTP API assembly.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Classifier ────────────────────────────────────────────────────
	if err := a.initClassifier(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}

	// ── 2. Project store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Session manager ───────────────────────────────────────────────
	var sessOpts []session.Option
	if a.classifier != nil {
		sessOpts = append(sessOpts, session.WithClassifier(a.classifier, a.classifierName))
	}
	a.sessions = session.NewManager(a.metrics, sessOpts...)
	a.sessions.SetDefaults(playbackOptions(cfg.Playback)...)

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	apiOpts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(a.checkers...)),
	}
	if a.metricsHandler != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.metricsHandler))
	}
	a.api = api.New(a.sessions, a.store, apiOpts...)
	a.handler = a.api.Handler()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initClassifier builds the primary backend and its fallbacks from the
// registry, each behind its own circuit breaker.
func (a *App) initClassifier() error {
	if a.classifier != nil {
		return nil
	}
	cc := a.cfg.Classifier
	if cc.Name == "" {
		slog.Warn("no classifier configured; sentiment analysis is disabled")
		return nil
	}
	if a.registry == nil {
		return fmt.Errorf("classifier %q configured but no provider registry given", cc.Name)
	}

	primary, err := a.registry.Create(cc.ProviderEntry)
	if err != nil {
		return fmt.Errorf("create classifier %q: %w", cc.Name, err)
	}
	a.closeIfCloser(primary)

	rc := resilience.NewClassifier(primary, cc.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   cc.CircuitBreaker.MaxFailures,
			ResetTimeout:  cc.CircuitBreaker.ResetTimeout,
			OnStateChange: a.onBreakerChange,
		},
	})
	for i, fb := range cc.Fallbacks {
		p, err := a.registry.Create(fb)
		if err != nil {
			return fmt.Errorf("create fallback classifier %q (index %d): %w", fb.Name, i, err)
		}
		a.closeIfCloser(p)
		rc.AddFallback(fb.Name, p)
	}

	a.classifier = rc
	a.classifierName = cc.Name
	slog.Info("classifier ready", "backends", rc.Names())
	return nil
}

func (a *App) closeIfCloser(p classifier.Provider) {
	if c, ok := p.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

func (a *App) onBreakerChange(name string, from, to resilience.State) {
	slog.Warn("classifier circuit breaker changed state", "provider", name, "from", from, "to", to)
	a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
}

// initStore connects to PostgreSQL when a DSN is configured and falls back to
// an in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.store = store.NewMemStore()
		slog.Info("using in-memory project store")
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	ps := store.NewPostgresStore(pool)
	if err := ps.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}

	a.store = ps
	a.checkers = append(a.checkers, health.Checker{Name: "store", Check: pool.Ping})
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("using postgres project store")
	return nil
}

// playbackOptions converts the playback config into session options. Zero
// values keep the session defaults.
func playbackOptions(p config.PlaybackConfig) []session.Option {
	var opts []session.Option
	if p.PollInterval > 0 {
		opts = append(opts, session.WithPollInterval(p.PollInterval))
	}
	if p.FrameInterval > 0 {
		opts = append(opts, session.WithFrameInterval(p.FrameInterval))
	}
	if p.ScoreAnimation > 0 {
		opts = append(opts, session.WithAnimationDuration(p.ScoreAnimation))
	}
	if p.TrailingPad > 0 {
		opts = append(opts, session.WithTrailingPad(p.TrailingPad))
	}
	if p.Intensity != nil {
		opts = append(opts, session.WithIntensity(*p.Intensity))
	}
	return opts
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Sessions returns the live session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Addr returns the address the server listens on, or nil before Run has
// bound it.
func (a *App) Addr() net.Addr {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ApplyConfig applies the hot-reloadable part of a config change. Playback
// tunables affect sessions created afterwards.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.PlaybackChanged {
		a.sessions.SetDefaults(playbackOptions(d.NewPlayback)...)
		slog.Info("playback settings reloaded")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and runs the classifier warm-up scheduler. It
// blocks until ctx is cancelled or the server fails. When ctx is done, Run
// returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	a.listenMu.Lock()
	a.listener = ln
	a.listenMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serve(gctx, ln) })
	g.Go(func() error { return a.runWarmup(gctx) })

	slog.Info("app running", "addr", ln.Addr().String())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown http: %w", err)
		}
		return nil
	}
}

// runWarmup pings the classifier once and then on the configured cron
// schedule until ctx is done. It returns immediately when the classifier
// cannot be warmed up.
func (a *App) runWarmup(ctx context.Context) error {
	w, ok := a.classifier.(classifier.WarmUpper)
	if !ok {
		return nil
	}

	sched := a.cfg.Classifier.WarmupSchedule
	if sched == "" {
		sched = config.DefaultWarmupSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(sched, func() { a.warmUp(ctx, w) }); err != nil {
		return fmt.Errorf("app: warm-up schedule %q: %w", sched, err)
	}

	a.warmUp(ctx, w)
	c.Start()
	slog.Debug("classifier warm-up scheduled", "schedule", sched)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *App) warmUp(ctx context.Context, w classifier.WarmUpper) {
	start := time.Now()
	if err := w.WarmUp(ctx); err != nil {
		if ctx.Err() == nil {
			slog.Warn("classifier warm-up failed", "err", err)
		}
		return
	}
	slog.Debug("classifier warmed up", "took", time.Since(start))
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, closes every session (running final
// autosaves), then runs the closers in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		a.sessions.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New acquired before it failed.
func (a *App) runClosers() {
	for _, closer := range a.closers {
		_ = closer()
	}
}

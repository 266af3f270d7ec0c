// Package api exposes live sessions and saved projects over HTTP and
// WebSocket using gin.
//
// Every error response has the shape {"error": "..."}; the status code is
// derived from the sentinel errors of the session, store, and classifier
// packages.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/podsync/internal/export"
	"github.com/MrWong99/podsync/internal/health"
	"github.com/MrWong99/podsync/internal/observe"
	"github.com/MrWong99/podsync/internal/session"
	"github.com/MrWong99/podsync/internal/store"
	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/words"
)

// wsWriteTimeout bounds a single state push to a WebSocket client.
const wsWriteTimeout = 5 * time.Second

// Server holds the dependencies of the HTTP API.
type Server struct {
	sessions         *session.Manager
	store            store.Store
	metrics          *observe.Metrics
	health           *health.Handler
	metricsHandler   http.Handler
	autosaveInterval time.Duration
	originPatterns   []string

	mu sync.Mutex
	// projects maps session id to the project it is saved as.
	projects map[string]projectRef
}

type projectRef struct {
	id   string
	name string
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records HTTP request metrics and spans to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithAutosaveInterval sets how often saved sessions are written back to the
// store.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *Server) { s.autosaveInterval = d }
}

// WithOriginPatterns allows cross-origin WebSocket clients from the given
// host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// New creates a [Server] over the given session manager and project store.
func New(sessions *session.Manager, st store.Store, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		store:    st,
		projects: make(map[string]projectRef),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the gin engine serving every route.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	s.health.Register(r)
	r.GET("/metrics", gin.WrapH(s.metricsHandler))

	api := r.Group("/api")
	api.GET("/animations", func(c *gin.Context) {
		c.JSON(http.StatusOK, words.AnimationCatalogue())
	})

	sessions := api.Group("/sessions")
	{
		sessions.POST("", s.createSession)
		sessions.GET("", s.listSessions)
		sessions.DELETE("/:id", s.deleteSession)

		sessions.POST("/:id/transcript", s.loadTranscript)
		sessions.POST("/:id/audio", s.loadAudio)
		sessions.GET("/:id/words", s.getWords)
		sessions.GET("/:id/speakers", s.getSpeakers)
		sessions.GET("/:id/state", s.getState)

		sessions.POST("/:id/analyze", s.analyze)
		sessions.DELETE("/:id/error", s.dismissError)

		sessions.PUT("/:id/sentiments/:sentence", s.setSentiment)
		sessions.PUT("/:id/words/:word", s.renameWord)
		sessions.PUT("/:id/words/:word/animation", s.setAnimation)
		sessions.PUT("/:id/words/:word/enhancement", s.setEnhancement)
		sessions.PUT("/:id/speakers/:name", s.updateSpeaker)
		sessions.PUT("/:id/settings", s.updateSettings)

		sessions.POST("/:id/save", s.saveSession)
		sessions.GET("/:id/export", s.exportSession)
		sessions.GET("/:id/ws", s.streamState)
	}

	projects := api.Group("/projects")
	{
		projects.GET("", s.listProjects)
		projects.POST("/:pid/open", s.openProject)
		projects.DELETE("/:pid", s.deleteProject)
	}

	return r
}

// errorStatus maps a domain error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrUnknownSpeaker),
		errors.Is(err, errProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAnalysisInProgress),
		errors.Is(err, session.ErrStaleAnalysis),
		errors.Is(err, session.ErrNotManualClock):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrNoClassifier):
		return http.StatusServiceUnavailable
	case errors.Is(err, classifier.ErrRequestFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoTranscript),
		errors.Is(err, session.ErrInvalidSentence),
		errors.Is(err, words.ErrWordIndexOutOfRange),
		errors.Is(err, words.ErrEmptyWord),
		errors.Is(err, words.ErrInvalidAnimation),
		errors.Is(err, words.ErrInvalidEnhancement),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abort writes err as a JSON error response.
func abort(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(c.Request.Context()).Error("request failed",
			"route", c.FullPath(),
			"status", status,
			"err", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// session resolves the :id path parameter and tags the request context with
// it. On failure it writes the error response and returns nil.
func (s *Server) session(c *gin.Context) *session.Session {
	id := c.Param("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		abort(c, err)
		return nil
	}
	c.Request = c.Request.WithContext(observe.WithSessionID(c.Request.Context(), id))
	return sess
}

func (s *Server) forgetProject(sessionID string) {
	s.mu.Lock()
	delete(s.projects, sessionID)
	s.mu.Unlock()
}

func logger(c *gin.Context) *slog.Logger {
	return observe.Logger(c.Request.Context())
}

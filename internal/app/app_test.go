package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/podsync/internal/app"
	"github.com/MrWong99/podsync/internal/config"
	"github.com/MrWong99/podsync/internal/store"
	"github.com/MrWong99/podsync/pkg/provider/classifier"
	"github.com/MrWong99/podsync/pkg/provider/classifier/mock"
	"github.com/MrWong99/podsync/pkg/sentiment"
	"github.com/MrWong99/podsync/pkg/words"
)

func init() { gin.SetMode(gin.TestMode) }

const transcriptText = `[00:00:00] Alice: Good morning
[00:00:03] Bob: Bad weather`

// testConfig returns a minimal config that binds to a random local port.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Classifier: config.ClassifierConfig{
			WarmupSchedule: "@every 1h",
		},
	}
}

func positiveDocs() []classifier.Document {
	return []classifier.Document{
		{ID: "0", Sentiment: sentiment.Positive},
		{ID: "1", Sentiment: sentiment.Negative},
	}
}

// request sends a request to h and returns the recorder.
func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// loadSession creates a session with the test transcript and returns its id.
func loadSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := request(t, h, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	rec = request(t, h, http.MethodPost, "/api/sessions/"+resp.ID+"/transcript", transcriptText)
	if rec.Code != http.StatusOK {
		t.Fatalf("load transcript: status %d: %s", rec.Code, rec.Body)
	}
	return resp.ID
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, append([]app.Option{app.WithStore(store.NewMemStore())}, opts...)...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_WithInjectedClassifier(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Documents: positiveDocs()}
	a := newApp(t, testConfig(), app.WithClassifier(p, "mock"))

	id := loadSession(t, a.Handler())
	rec := request(t, a.Handler(), http.MethodPost, "/api/sessions/"+id+"/analyze", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status %d: %s", rec.Code, rec.Body)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Classify call count = %d, want 1", len(calls))
	}
	if got := len(calls[0].Sentences); got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}
}

func TestNew_RegistryFallback(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ClassifyErr: errors.New("backend asleep")}
	backup := &mock.Provider{Documents: positiveDocs()}

	reg := config.NewRegistry()
	reg.Register("primary", func(config.ProviderEntry) (classifier.Provider, error) { return primary, nil })
	reg.Register("backup", func(config.ProviderEntry) (classifier.Provider, error) { return backup, nil })

	cfg := testConfig()
	cfg.Classifier.Name = "primary"
	cfg.Classifier.Fallbacks = []config.ProviderEntry{{Name: "backup"}}
	a := newApp(t, cfg, app.WithRegistry(reg))

	id := loadSession(t, a.Handler())
	rec := request(t, a.Handler(), http.MethodPost, "/api/sessions/"+id+"/analyze", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status %d: %s", rec.Code, rec.Body)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls primary=%d backup=%d, want 1 and 1", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestNew_ClassifierErrors(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.Register("broken", func(config.ProviderEntry) (classifier.Provider, error) {
		return nil, errors.New("no credentials")
	})

	tests := []struct {
		name    string
		entry   string
		reg     *config.Registry
		wantErr error
	}{
		{name: "not registered", entry: "nope", reg: reg, wantErr: config.ErrProviderNotRegistered},
		{name: "factory fails", entry: "broken", reg: reg},
		{name: "no registry", entry: "broken", reg: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Classifier.Name = tt.entry
			_, err := app.New(context.Background(), cfg, app.WithRegistry(tt.reg), app.WithStore(store.NewMemStore()))
			if err == nil {
				t.Fatal("New() returned nil error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_NoClassifier(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	id := loadSession(t, a.Handler())
	rec := request(t, a.Handler(), http.MethodPost, "/api/sessions/"+id+"/analyze", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("analyze without classifier: status %d, want 503", rec.Code)
	}
}

func TestNew_PlaybackConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Playback.TrailingPad = 10
	a := newApp(t, cfg)

	id := loadSession(t, a.Handler())
	if end := lastWordEnd(t, a.Handler(), id); end != 13 {
		t.Errorf("last word end = %v, want 13", end)
	}
}

func TestApplyConfig_Playback(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	before := loadSession(t, a.Handler())

	a.ApplyConfig(config.ConfigDiff{
		PlaybackChanged: true,
		NewPlayback:     config.PlaybackConfig{TrailingPad: 2},
	})
	after := loadSession(t, a.Handler())

	if end := lastWordEnd(t, a.Handler(), before); end != 3+4 {
		t.Errorf("existing session last word end = %v, want 7", end)
	}
	if end := lastWordEnd(t, a.Handler(), after); end != 3+2 {
		t.Errorf("new session last word end = %v, want 5", end)
	}
}

func lastWordEnd(t *testing.T, h http.Handler, id string) float64 {
	t.Helper()
	rec := request(t, h, http.MethodGet, "/api/sessions/"+id+"/words", "")
	var ws []words.Word
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("decode words: %v", err)
	}
	if len(ws) == 0 {
		t.Fatal("no words")
	}
	return ws[len(ws)-1].End
}

func TestRun_ServesAndWarmsUp(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	a := newApp(t, testConfig(), app.WithClassifier(p, "mock"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for a.Addr() == nil || p.WarmUps() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("server not ready: addr=%v warmups=%d", a.Addr(), p.WarmUps())
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_InvalidWarmupSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Classifier.WarmupSchedule = "every now and then"
	a := newApp(t, cfg, app.WithClassifier(&mock.Provider{}, "mock"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want schedule error", err)
	}
}

// closingProvider counts Close calls.
type closingProvider struct {
	mock.Provider
	closed atomic.Int32
}

func (p *closingProvider) Close() error {
	p.closed.Add(1)
	return nil
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	newClosing := func(t *testing.T) (*app.App, *closingProvider) {
		t.Helper()
		p := &closingProvider{}
		reg := config.NewRegistry()
		reg.Register("closing", func(config.ProviderEntry) (classifier.Provider, error) { return p, nil })
		cfg := testConfig()
		cfg.Classifier.Name = "closing"
		a, err := app.New(context.Background(), cfg, app.WithRegistry(reg), app.WithStore(store.NewMemStore()))
		if err != nil {
			t.Fatal(err)
		}
		return a, p
	}

	t.Run("runs closers once", func(t *testing.T) {
		t.Parallel()
		a, p := newClosing(t)
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() = %v", err)
		}
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("second Shutdown() = %v", err)
		}
		if got := p.closed.Load(); got != 1 {
			t.Errorf("Close calls = %d, want 1", got)
		}
		if _, err := a.Sessions().Create(); err == nil {
			t.Error("Create after Shutdown succeeded")
		}
	})

	t.Run("expired deadline skips closers", func(t *testing.T) {
		t.Parallel()
		a, p := newClosing(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Shutdown() = %v, want context.Canceled", err)
		}
		if got := p.closed.Load(); got != 0 {
			t.Errorf("Close calls = %d, want 0", got)
		}
	})
}

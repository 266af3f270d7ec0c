package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

// initTelemetry installs a Telemetry as the global providers and restores
// the previous ones afterwards. Tests using it must not run in parallel.
func initTelemetry(t *testing.T, cfg ProviderConfig) *Telemetry {
	t.Helper()
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	tel, err := InitProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})
	return tel
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	return string(body)
}

func TestInitProvider_ServesPodsyncMetrics(t *testing.T) {
	tel := initTelemetry(t, ProviderConfig{
		ServiceName:    "podsync-test",
		ServiceVersion: "v0.0.0",
		InstanceID:     "replica-1",
	})

	m, err := tel.Metrics()
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	m.PollTicks.Add(context.Background(), 3)

	body := scrape(t, tel.MetricsHandler())
	for _, want := range []string{
		"podsync_playback_poll_ticks",
		"go_goroutines",
		`service_instance_id="replica-1"`,
		`service_name="podsync-test"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInitProvider_SetsGlobalsAndIsolatesRegistries(t *testing.T) {
	first := initTelemetry(t, ProviderConfig{})
	if otel.GetTracerProvider() != first.Tracer {
		t.Error("tracer provider not installed globally")
	}
	if otel.GetMeterProvider() != first.Meter {
		t.Error("meter provider not installed globally")
	}

	// A second install must not collide with the first registry.
	second := initTelemetry(t, ProviderConfig{})
	if first.Registry == second.Registry {
		t.Error("telemetry instances share a registry")
	}

	if body := scrape(t, second.MetricsHandler()); !strings.Contains(body, `service_name="podsync"`) {
		t.Errorf("default service name missing from metrics output")
	}
}

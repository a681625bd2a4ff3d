package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	provider, err := Setup(context.Background(), config.TelemetryConfig{MetricsEnabled: false})
	if err != nil {
		t.Fatalf("Setup err: %v", err)
	}
	if provider != nil {
		t.Fatal("expected nil provider when metrics are disabled")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil provider shutdown should be a no-op, got %v", err)
	}
}

func TestSetupServesMetrics(t *testing.T) {
	provider, err := Setup(context.Background(), config.TelemetryConfig{MetricsEnabled: true, ServiceName: "callsim-test"})
	if err != nil {
		t.Fatalf("Setup err: %v", err)
	}
	defer provider.Shutdown(context.Background())

	counter, err := otel.Meter("telemetry_test").Int64Counter("callsim_smoke_total")
	if err != nil {
		t.Fatalf("counter err: %v", err)
	}
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	provider.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "callsim_smoke_total") {
		t.Fatalf("metrics output missing smoke counter:\n%s", body)
	}
	if !strings.Contains(string(body), `service_name="callsim-test"`) {
		t.Fatalf("metrics output missing service name:\n%s", body)
	}
}

package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/resonancehq/resonance/internal/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevTracer := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestSetupDisabled(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown hook is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled setup replaced the global provider")
	}
}

func TestSetupUnknownProtocol(t *testing.T) {
	restoreGlobals(t)

	_, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "thrift",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown telemetry protocol") {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestSetupInstallsProvider(t *testing.T) {
	protocols := []string{"", "grpc", "http"}
	for _, proto := range protocols {
		name := proto
		if name == "" {
			name = "default"
		}
		t.Run(name, func(t *testing.T) {
			restoreGlobals(t)
			before := otel.GetTracerProvider()

			shutdown, err := Setup(context.Background(), config.TelemetryConfig{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				Protocol:    proto,
				Insecure:    true,
				ServiceName: "resonance-test",
				Headers:     map[string]string{"x-team": "local"},
			})
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if otel.GetTracerProvider() == before {
				t.Error("global provider not replaced")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		})
	}
}

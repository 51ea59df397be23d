package observability

import (
	"context"
	"testing"

	"deskify/internal/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled tracing must not error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a no-op shutdown function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned error: %v", err)
	}
}

func TestGrpcTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "localhost:4317"},
		{"collector:4317", "collector:4317"},
		{"http://collector:4317", "collector:4317"},
		{"https://otel.example.com:4317", "otel.example.com:4317"},
	}
	for _, tt := range tests {
		if got := grpcTarget(tt.in); got != tt.want {
			t.Errorf("grpcTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		endpoint    string
		wantErr     bool
	}{
		{
			name:        "valid configuration",
			serviceName: "classifier",
			endpoint:    "localhost:4318",
		},
		{
			name:        "empty service name falls back to the namespace",
			serviceName: "",
			endpoint:    "localhost:4318",
		},
		{
			name:        "endpoint from environment",
			serviceName: "watchdog",
			endpoint:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.serviceName, tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitTracer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tp != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := Shutdown(shutdownCtx, tp); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

func TestSetup(t *testing.T) {
	t.Run("disabled returns a no-op shutdown", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), Options{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	})

	t.Run("enabled installs a provider", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), Options{Enabled: true, ServiceName: "executor", Endpoint: "localhost:4318"}, nil)
		if err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	})
}

func TestShutdown(t *testing.T) {
	t.Run("shutdown with nil provider", func(t *testing.T) {
		if err := Shutdown(context.Background(), nil); err != nil {
			t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
		}
	})
}

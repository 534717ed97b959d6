package main

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/config"
	"go.uber.org/zap"
)

func TestRun_ReasonerUnavailableReturnsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := config.Defaults()
	cfg.VaultPath = t.TempDir()
	rt, err := bootstrap.NewWithLogger(ctx, "classifier", cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWithLogger failed: %v", err)
	}
	defer rt.Close()

	if err := run(ctx, rt, true); !errors.Is(err, config.ErrMissingReasoner) {
		t.Errorf("Expected ErrMissingReasoner, got %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/workers"
	"go.uber.org/zap"
)

func main() {
	onceFlag := flag.Bool("once", false, "Run a single drafting pass and exit")
	debugFlag := flag.Bool("debug", false, "Enable debug mode for Reasoner logging")
	flag.Parse()

	if err := start(*onceFlag, *debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "drafter: %v\n", err)
		os.Exit(1)
	}
}

// start owns the runtime so its cleanup finishes before main exits
func start(once, debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "drafter", debug)
	if err != nil {
		return fmt.Errorf("failed to start drafter: %w", err)
	}
	defer rt.Close()

	return run(ctx, rt, once)
}

func run(ctx context.Context, rt *bootstrap.Runtime, once bool) error {
	reasoner, err := rt.Reasoner()
	if err != nil {
		rt.Logger.Error("reasoner_unavailable", zap.Error(err))
		return err
	}

	drafter := workers.NewDrafter(rt.Store, reasoner, rt.Logger, workers.DrafterConfig{
		BatchSize: rt.Config.DraftBatchSize,
		Timeout:   rt.Config.DraftTimeout,
	})

	pass := func(ctx context.Context) error {
		_, err := drafter.RunPass(ctx)
		return err
	}

	if once {
		if err := rt.Once(ctx, "drafter", pass); err != nil {
			rt.Logger.Error("drafting_pass_failed", zap.Error(err))
			return err
		}
		return nil
	}

	if err := rt.Loop(ctx, "drafter", rt.Config.DraftInterval, pass); err != nil {
		rt.Logger.Error("drafter_loop_failed", zap.Error(err))
		return err
	}
	return nil
}

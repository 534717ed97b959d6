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
	debugFlag := flag.Bool("debug", false, "Enable debug mode for Reasoner logging")
	flag.Parse()

	if err := start(*debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "executor: %v\n", err)
		os.Exit(1)
	}
}

// start owns the runtime so its cleanup finishes before main exits
func start(debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "executor", debug)
	if err != nil {
		return fmt.Errorf("failed to start executor: %w", err)
	}
	defer rt.Close()

	return run(ctx, rt)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	reasoner, err := rt.Reasoner()
	if err != nil {
		rt.Logger.Error("reasoner_unavailable", zap.Error(err))
		return err
	}

	notifier := rt.Notifier(ctx)
	executor := workers.NewExecutor(rt.Store, reasoner, rt.Dispatcher(), rt.Ledger(ctx), rt.Logger, rt.Config.ReasonerTimeout)
	drafts := workers.NewDraftWatcher(rt.Store, rt.SeenSet(ctx), notifier, rt.Logger)

	pass := func(ctx context.Context) error {
		// announce first so drafts approved within this cycle were still seen
		if _, err := drafts.RunPass(ctx); err != nil {
			rt.Logger.Warn("draft_watch_failed", zap.Error(err))
		}
		_, err := executor.RunPass(ctx)
		return err
	}

	if err := rt.Loop(ctx, "executor", rt.Config.ExecuteInterval, pass); err != nil {
		rt.Logger.Error("executor_loop_failed", zap.Error(err))
		return err
	}
	return nil
}

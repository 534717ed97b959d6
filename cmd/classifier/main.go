package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/workers"
	"go.uber.org/zap"
)

func main() {
	onceFlag := flag.Bool("once", false, "Run a single classification pass and exit")
	debugFlag := flag.Bool("debug", false, "Enable debug mode for Reasoner logging")
	flag.Parse()

	if err := start(*onceFlag, *debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "classifier: %v\n", err)
		os.Exit(1)
	}
}

// start owns the runtime so its cleanup finishes before main exits
func start(once, debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "classifier", debug)
	if err != nil {
		return fmt.Errorf("failed to start classifier: %w", err)
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

	classifier := workers.NewClassifier(
		rt.Store,
		reasoner,
		rt.Ledger(ctx),
		rt.Dashboard(),
		rt.Logger,
		workers.ClassifierConfig{
			Timeout:  rt.Config.ReasonerTimeout,
			Fallback: models.Category(rt.Config.ClassifyFallback),
		},
	)

	pass := func(ctx context.Context) error {
		tally, err := classifier.RunPass(ctx)
		if err != nil {
			return err
		}
		if tally.Total() > 0 {
			rt.Logger.Info("classification_pass_complete",
				zap.Int("items", tally.Total()),
				zap.Int("actionable", tally[models.CategoryActionable]),
			)
		}
		return nil
	}

	if once {
		if err := rt.Once(ctx, "classifier", pass); err != nil {
			rt.Logger.Error("classification_pass_failed", zap.Error(err))
			return err
		}
		return nil
	}

	if err := rt.Loop(ctx, "classifier", rt.Config.ClassifyInterval, pass); err != nil {
		rt.Logger.Error("classifier_loop_failed", zap.Error(err))
		return err
	}
	return nil
}

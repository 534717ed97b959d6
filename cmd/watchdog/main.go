package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/supervisor"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := start(*debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "watchdog: %v\n", err)
		os.Exit(1)
	}
}

func start(debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "watchdog", debug)
	if err != nil {
		return fmt.Errorf("failed to start watchdog: %w", err)
	}
	defer rt.Close()

	watchdog := supervisor.NewWatchdog(rt.ProcessManager(), rt.Store, rt.Notifier(ctx), rt.Logger, supervisor.Config{
		Monitored:   rt.Config.WatchdogProcesses,
		MaxRestarts: rt.Config.WatchdogMaxRestarts,
		Window:      rt.Config.WatchdogWindow,
	})
	rt.Logger.Info("watchdog_configured",
		zap.Strings("monitored", rt.Config.WatchdogProcesses),
		zap.Int("max_restarts", rt.Config.WatchdogMaxRestarts),
		zap.Duration("window", rt.Config.WatchdogWindow),
	)

	if err := rt.Loop(ctx, "watchdog", rt.Config.WatchdogInterval, watchdog.Cycle); err != nil {
		rt.Logger.Error("watchdog_loop_failed", zap.Error(err))
		return err
	}
	return nil
}

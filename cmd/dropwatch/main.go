package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/watcher"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := start(*debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "dropwatch: %v\n", err)
		os.Exit(1)
	}
}

func start(debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "dropwatch", debug)
	if err != nil {
		return fmt.Errorf("failed to start drop folder watcher: %w", err)
	}
	defer rt.Close()

	drop := watcher.NewDropFolder(rt.Config.InboxPath, rt.Store, rt.Logger, watcher.WithSettle(rt.Config.DropSettle))
	if err := drop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error("drop_folder_failed", zap.Error(err))
		return err
	}
	return nil
}

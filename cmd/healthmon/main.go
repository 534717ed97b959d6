package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/health"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := start(*debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "healthmon: %v\n", err)
		os.Exit(1)
	}
}

func start(debug bool) error {
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	rt, err := bootstrap.New(ctx, "healthmon", debug)
	if err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	defer rt.Close()

	checks := []health.Check{
		health.NewProcessCheck(rt.ProcessManager(), rt.Config.HealthSkipProcesses),
		health.NewSyncCheck(rt.Config.VaultPath, rt.Config.HealthSyncMaxAge),
	}
	if rt.Config.HealthProbeURL != "" {
		checks = append(checks, health.NewHTTPProbe(rt.Config.HealthProbeURL, nil))
	}
	monitor := health.NewMonitor(rt.Store, rt.Notifier(ctx), rt.Logger, checks...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Loop(gctx, "healthmon", rt.Config.HealthInterval, monitor.Cycle)
	})

	if addr := rt.Config.HealthListenAddr; addr != "" {
		router := health.NewRouter(health.NewStatusHandler(monitor, rt.Store), rt.Logger, health.RouterConfig{
			AllowedOrigins: rt.Config.HealthAllowedOrigins,
			EnableOTEL:     rt.Config.OTELEnabled,
			ServiceName:    "vaultflow-healthmon",
		})
		srv := health.NewServer(addr, router)

		g.Go(func() error {
			rt.Logger.Info("status_server_listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		rt.Logger.Error("health_monitor_failed", zap.Error(err))
		return err
	}
	return nil
}

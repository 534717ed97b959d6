// Package daemon runs a pass function forever: pass, sleep, repeat. A failing
// or panicking pass is logged and never stops the loop.
package daemon

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Cycle is one pass of a daemon
type Cycle func(ctx context.Context) error

// Loop runs a Cycle on a fixed interval
type Loop struct {
	name     string
	interval time.Duration
	cycle    Cycle
	logger   *zap.Logger
}

// New creates a loop
func New(name string, interval time.Duration, cycle Cycle, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		name:     name,
		interval: interval,
		cycle:    cycle,
		logger:   logger.With(zap.String("loop", name)),
	}
}

// Run runs a pass immediately and then once per interval until ctx is done.
// Cancellation is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("daemon_started", zap.Duration("interval", l.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("daemon_stopped")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("daemon_stopped")
				return nil
			}
			l.logger.Error("daemon_cycle_failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		} else {
			l.logger.Debug("daemon_cycle_completed", zap.Duration("duration", time.Since(start)))
		}
		timer.Reset(l.interval)
	}
}

// RunOnce runs a single pass and converts a panic into an error
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("daemon_cycle_panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%s cycle panicked: %v", l.name, r)
		}
	}()
	return l.cycle(ctx)
}

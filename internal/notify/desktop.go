package notify

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

const desktopTimeout = 5 * time.Second

// CommandRunner runs an external command
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Desktop shows notifications with notify-send
type Desktop struct {
	appName string
	run     CommandRunner
	logger  *zap.Logger
}

// NewDesktop creates a desktop notifier
func NewDesktop(appName string, logger *zap.Logger) *Desktop {
	return NewDesktopWithRunner(appName, logger, execRunner)
}

// NewDesktopWithRunner creates a desktop notifier with a custom command runner
func NewDesktopWithRunner(appName string, logger *zap.Logger, run CommandRunner) *Desktop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if appName == "" {
		appName = "vaultflow"
	}
	return &Desktop{appName: appName, run: run, logger: logger}
}

// Notify runs notify-send. A missing binary is expected on headless hosts.
func (d *Desktop) Notify(ctx context.Context, title, body string) {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()

	err := d.run(ctx, "notify-send", "--app-name="+d.appName, title, body)
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrNotFound):
		d.logger.Debug("desktop_notify_unavailable")
	default:
		d.logger.Warn("desktop_notify_failed", zap.Error(err))
	}
}

var _ Notifier = (*Desktop)(nil)

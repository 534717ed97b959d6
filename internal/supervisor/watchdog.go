// Package supervisor restarts monitored processes that are not online,
// capping restarts per process within a sliding window.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StatusOnline is the only process state that needs no action
const StatusOnline = "online"

const (
	DefaultMaxRestarts = 5
	DefaultWindow      = 60 * time.Minute
)

// LogRef is the watchdog's append-only log
var LogRef = models.NewRef(models.StageLogs, "watchdog.log")

// ProcessManager reports and restarts supervised processes
type ProcessManager interface {
	Status(ctx context.Context) (map[string]string, error)
	Restart(ctx context.Context, name string) error
}

// ProcessRecord is the watchdog's in-memory view of one process
type ProcessRecord struct {
	Name       string
	LastStatus string
	Restarts   []time.Time
	Escalated  bool
}

// Config configures a Watchdog
type Config struct {
	Monitored   []string
	MaxRestarts int
	Window      time.Duration
}

// Watchdog is the process supervisor. State is in memory and is lost on restart.
type Watchdog struct {
	pm       ProcessManager
	store    store.Store
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	records map[string]*ProcessRecord
}

// NewWatchdog creates a Watchdog
func NewWatchdog(pm ProcessManager, s store.Store, n notify.Notifier, logger *zap.Logger, cfg Config) *Watchdog {
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	monitored := append([]string(nil), cfg.Monitored...)
	sort.Strings(monitored)
	cfg.Monitored = monitored

	return &Watchdog{
		pm:       pm,
		store:    s,
		notifier: n,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		records:  make(map[string]*ProcessRecord),
	}
}

// SetClock overrides the clock
func (w *Watchdog) SetClock(clock func() time.Time) {
	w.now = clock
}

// Record returns a copy of the state kept for name
func (w *Watchdog) Record(name string) (ProcessRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.records[name]
	if !ok {
		return ProcessRecord{}, false
	}
	cp := *r
	cp.Restarts = append([]time.Time(nil), r.Restarts...)
	return cp, true
}

// Cycle runs one supervision pass. A failed or empty status fetch skips the
// pass without touching any record.
func (w *Watchdog) Cycle(ctx context.Context) error {
	ctx, span := otel.Tracer("vaultflow/supervisor").Start(ctx, "watchdog.cycle")
	defer span.End()

	status, err := w.pm.Status(ctx)
	if err != nil {
		w.logger.Warn("watchdog_status_failed", zap.Error(err))
		return nil
	}
	if len(status) == 0 {
		w.logger.Warn("watchdog_status_empty")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	restarted := 0
	for _, name := range w.cfg.Monitored {
		state, ok := status[name]
		if !ok {
			w.logger.Debug("watchdog_process_absent", zap.String("process", name))
			continue
		}
		rec := w.record(name)
		rec.LastStatus = state
		if state == StatusOnline {
			continue
		}
		if w.handleDown(ctx, rec) {
			restarted++
		}
	}
	span.SetAttributes(attribute.Int("watchdog.restarted", restarted))
	return nil
}

func (w *Watchdog) record(name string) *ProcessRecord {
	rec, ok := w.records[name]
	if !ok {
		rec = &ProcessRecord{Name: name}
		w.records[name] = rec
	}
	return rec
}

// handleDown restarts rec if the window has room and reports whether it did
func (w *Watchdog) handleDown(ctx context.Context, rec *ProcessRecord) bool {
	now := w.now()
	rec.Restarts = pruneWindow(rec.Restarts, now, w.cfg.Window)

	if len(rec.Restarts) >= w.cfg.MaxRestarts {
		w.logger.Error("watchdog_restart_cap_reached",
			zap.String("process", rec.Name),
			zap.String("status", rec.LastStatus),
			zap.Int("restarts", len(rec.Restarts)),
			zap.Duration("window", w.cfg.Window),
		)
		if !rec.Escalated {
			rec.Escalated = true
			msg := fmt.Sprintf("%s hit %d restarts in %s; not restarting", rec.Name, w.cfg.MaxRestarts, w.cfg.Window)
			w.appendLog(ctx, now, "escalation: "+msg)
			w.notifier.Notify(ctx, notify.TitleEscalation, msg)
		}
		return false
	}
	rec.Escalated = false

	w.logger.Warn("watchdog_restarting",
		zap.String("process", rec.Name),
		zap.String("status", rec.LastStatus),
	)
	// the attempt counts against the window even if the restart command fails
	rec.Restarts = append(rec.Restarts, now)
	if err := w.pm.Restart(ctx, rec.Name); err != nil {
		w.logger.Error("watchdog_restart_failed", zap.String("process", rec.Name), zap.Error(err))
		w.appendLog(ctx, now, fmt.Sprintf("restart of %s failed: %v", rec.Name, err))
		return false
	}

	w.appendLog(ctx, now, "restarted "+rec.Name)
	w.notifier.Notify(ctx, notify.TitleRestart, fmt.Sprintf("Restarted %s (was %s)", rec.Name, rec.LastStatus))
	return true
}

func (w *Watchdog) appendLog(ctx context.Context, now time.Time, line string) {
	entry := fmt.Sprintf("%s - %s\n", now.Format(time.DateTime), line)
	if err := w.store.AppendFile(ctx, LogRef, []byte(entry)); err != nil {
		w.logger.Error("watchdog_log_failed", zap.Error(err))
	}
}

// pruneWindow keeps the timestamps younger than window
func pruneWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	return kept
}

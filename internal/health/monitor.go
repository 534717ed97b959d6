// Package health runs read-only checks over the engine's processes and vault.
// It alerts and never remediates.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AlertLogRef is where combined issues are appended
var AlertLogRef = models.NewRef(models.StageLogs, "health_alerts.log")

// Report is the result of one monitoring pass
type Report struct {
	Timestamp time.Time         `json:"timestamp"`
	Healthy   bool              `json:"healthy"`
	Issues    []string          `json:"issues,omitempty"`
	Checks    map[string]string `json:"checks"`
}

// Monitor runs every check once per cycle and alerts on the combined issues
type Monitor struct {
	checks   []Check
	store    store.Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest *Report
}

// NewMonitor creates a monitor
func NewMonitor(s store.Store, n notify.Notifier, logger *zap.Logger, checks ...Check) *Monitor {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{checks: checks, store: s, notifier: n, logger: logger, now: time.Now}
}

// SetClock overrides the clock
func (m *Monitor) SetClock(clock func() time.Time) {
	m.now = clock
}

// Latest returns the last report, or nil before the first cycle
func (m *Monitor) Latest() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Cycle runs all checks concurrently. Issues keep check order.
func (m *Monitor) Cycle(ctx context.Context) error {
	results := make([][]string, len(m.checks))
	states := make([]string, len(m.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range m.checks {
		g.Go(func() error {
			issues, err := check.Run(gctx)
			if err != nil {
				m.logger.Warn("health_check_failed", zap.String("check", check.Name()), zap.Error(err))
				issues = append(issues, fmt.Sprintf("%s check failed: %v", check.Name(), err))
			}
			results[i] = issues
			if len(issues) == 0 {
				states[i] = "healthy"
			} else {
				states[i] = "unhealthy: " + strings.Join(issues, "; ")
			}
			return nil
		})
	}
	_ = g.Wait()

	now := m.now()
	report := &Report{Timestamp: now, Checks: make(map[string]string, len(m.checks))}
	for i, check := range m.checks {
		report.Issues = append(report.Issues, results[i]...)
		report.Checks[check.Name()] = states[i]
	}
	report.Healthy = len(report.Issues) == 0

	m.mu.Lock()
	m.latest = report
	m.mu.Unlock()

	if report.Healthy {
		m.logger.Debug("health_ok")
		return nil
	}

	m.logger.Warn("health_issues", zap.Strings("issues", report.Issues))
	line := fmt.Sprintf("[%s] %s\n", now.Format(time.DateTime), strings.Join(report.Issues, "; "))
	if err := m.store.AppendFile(ctx, AlertLogRef, []byte(line)); err != nil {
		m.logger.Error("health_alert_log_failed", zap.Error(err))
	}
	m.notifier.Notify(ctx, notify.TitleHealth, strings.Join(report.Issues, "\n"))
	return nil
}

// Package dashboard maintains Dashboard.md, a derived view of the vault that
// is rebuilt from stage counts and its own activity log on every update.
package dashboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/store"
	"go.uber.org/zap"
)

const (
	// FileName is the dashboard's name at the vault root
	FileName = "Dashboard.md"
	// MaxActivity bounds the Recent Activity section
	MaxActivity = 15

	activityHeading = "## Recent Activity"
)

// Ref is the dashboard location
var Ref = models.NewRef(models.StageRoot, FileName)

// StatusSource reports process states for the monitored processes section
type StatusSource interface {
	Status(ctx context.Context) (map[string]string, error)
}

// Snapshot is everything rendered into the dashboard
type Snapshot struct {
	Date            time.Time
	Raw             int
	PendingApproval int
	Plans           int
	Done            int
	Processes       map[string]string
	ProcessOrder    []string
	Tally           models.Tally
	Activity        []string
}

// Aggregator recomputes the dashboard
type Aggregator struct {
	store     store.Store
	logger    *zap.Logger
	processes []string
	status    StatusSource
	now       func() time.Time
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithProcesses lists the processes shown in the monitored processes section
func WithProcesses(names []string, status StatusSource) Option {
	return func(a *Aggregator) {
		a.processes = names
		a.status = status
	}
}

// WithClock overrides the clock
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = clock
	}
}

// New creates an Aggregator
func New(s store.Store, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{store: s, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Update records a classification pass and rewrites the dashboard
func (a *Aggregator) Update(ctx context.Context, tally models.Tally) (*Snapshot, error) {
	snap, err := a.Snapshot(ctx, tally)
	if err != nil {
		return nil, err
	}

	snap.Activity = PrependActivity(snap.Activity, ActivityEntry(snap.Date, tally))
	if err := a.store.WriteFile(ctx, Ref, []byte(Render(snap))); err != nil {
		return nil, fmt.Errorf("failed to write dashboard: %w", err)
	}

	a.logger.Info("dashboard_updated",
		zap.Int("processed", tally.Total()),
		zap.Int("raw", snap.Raw),
		zap.Int("pending_approval", snap.PendingApproval),
		zap.Int("done", snap.Done),
	)
	return snap, nil
}

// Snapshot gathers the current counts and existing activity without writing
func (a *Aggregator) Snapshot(ctx context.Context, tally models.Tally) (*Snapshot, error) {
	snap := &Snapshot{Date: a.now(), Tally: tally}

	counts := []struct {
		stage models.Stage
		dst   *int
	}{
		{models.StageRaw, &snap.Raw},
		{models.StagePendingApproval, &snap.PendingApproval},
		{models.StagePlans, &snap.Plans},
		{models.StageDone, &snap.Done},
	}
	for _, c := range counts {
		n, err := store.Count(ctx, a.store, c.stage)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.stage, err)
		}
		*c.dst = n
	}

	existing, err := a.store.ReadFile(ctx, Ref)
	switch {
	case err == nil:
		snap.Activity = ParseActivity(string(existing))
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to read dashboard: %w", err)
	}

	snap.ProcessOrder = a.processes
	snap.Processes = make(map[string]string, len(a.processes))
	var states map[string]string
	if a.status != nil && len(a.processes) > 0 {
		states, err = a.status.Status(ctx)
		if err != nil {
			a.logger.Warn("dashboard_process_status_failed", zap.Error(err))
		}
	}
	for _, name := range a.processes {
		state := states[name]
		if state == "" {
			state = "unknown"
		}
		snap.Processes[name] = state
	}
	return snap, nil
}

// ActivityEntry formats the activity line for one pass
func ActivityEntry(date time.Time, tally models.Tally) string {
	parts := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		if n := tally[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c))
		}
	}
	return fmt.Sprintf("- [%s] Processed %d Needs_Action files (%s)", date.Format(time.DateOnly), tally.Total(), strings.Join(parts, ", "))
}

// PrependActivity adds entry at the front, collapses consecutive duplicates
// and keeps the most recent MaxActivity lines
func PrependActivity(existing []string, entry string) []string {
	lines := make([]string, 0, len(existing)+1)
	for _, l := range append([]string{entry}, existing...) {
		if len(lines) > 0 && lines[len(lines)-1] == l {
			continue
		}
		lines = append(lines, l)
		if len(lines) == MaxActivity {
			break
		}
	}
	return lines
}

// ParseActivity reads the bullet lines of the Recent Activity section
func ParseActivity(text string) []string {
	var lines []string
	in := false
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, activityHeading):
			in = true
		case in && strings.HasPrefix(line, "##"):
			return lines
		case in && strings.HasPrefix(line, "- "):
			lines = append(lines, line)
		}
	}
	return lines
}

// Render produces the full dashboard text
func Render(s *Snapshot) string {
	date := s.Date.Format(time.DateOnly)
	var b strings.Builder

	b.WriteString("# AI Employee Dashboard\n")
	fmt.Fprintf(&b, "Last Updated: %s\n\n", date)

	b.WriteString("## Status\n")
	fmt.Fprintf(&b, "- Pending Actions: %d\n", s.Raw)
	fmt.Fprintf(&b, "- Pending Approval: %d\n", s.PendingApproval)
	fmt.Fprintf(&b, "- Active Plans: %d\n", s.Plans)
	fmt.Fprintf(&b, "- Completed: %d\n\n", s.Done)

	if len(s.ProcessOrder) > 0 {
		b.WriteString("## Monitored Processes\n")
		names := append([]string(nil), s.ProcessOrder...)
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, s.Processes[name])
		}
		b.WriteString("\n")
	}

	tally := s.Tally
	if tally == nil {
		tally = models.NewTally()
	}
	fmt.Fprintf(&b, "## Inbox Processing Summary (%s)\n", date)
	b.WriteString("| Classification | Count | Action Taken |\n")
	b.WriteString("|---|---|---|\n")
	for _, c := range models.Categories {
		n := tally[c]
		action := "Moved to Done/"
		if c.Destination() == models.StagePendingApproval && n > 0 {
			action = "Moved to Pending_Approval/"
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", c, n, action)
	}
	fmt.Fprintf(&b, "| **Total** | **%d** | **All processed** |\n\n", tally.Total())

	b.WriteString(activityHeading)
	b.WriteString("\n")
	for _, l := range s.Activity {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

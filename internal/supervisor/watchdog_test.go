package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/vaultflow/internal/store"
)

type mockProcessManager struct {
	mu         sync.Mutex
	StatusFunc func(ctx context.Context) (map[string]string, error)
	RestartErr error
	restarted  []string
}

func (m *mockProcessManager) Status(ctx context.Context) (map[string]string, error) {
	return m.StatusFunc(ctx)
}

func (m *mockProcessManager) Restart(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarted = append(m.restarted, name)
	return m.RestartErr
}

func (m *mockProcessManager) restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.restarted)
}

type mockNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (m *mockNotifier) Notify(ctx context.Context, title, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
}

func (m *mockNotifier) count(title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.titles {
		if t == title {
			n++
		}
	}
	return n
}

var _ ProcessManager = (*mockProcessManager)(nil)

func staticStatus(status map[string]string) func(ctx context.Context) (map[string]string, error) {
	return func(ctx context.Context) (map[string]string, error) {
		return status, nil
	}
}

func newTestWatchdog(pm ProcessManager, n *mockNotifier, s store.Store, monitored ...string) (*Watchdog, *time.Time) {
	w := NewWatchdog(pm, s, n, nil, Config{Monitored: monitored, MaxRestarts: 5, Window: time.Hour})
	clock := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	w.SetClock(func() time.Time { return clock })
	return w, &clock
}

func TestWatchdog_SlidingWindowCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pm := &mockProcessManager{StatusFunc: staticStatus(map[string]string{"executor": "errored"})}
	n := &mockNotifier{}
	w, clock := newTestWatchdog(pm, n, store.NewMemoryStore(), "executor")
	start := *clock

	// one observation per minute for minutes 0..5
	for minute := 0; minute <= 5; minute++ {
		*clock = start.Add(time.Duration(minute) * time.Minute)
		if err := w.Cycle(ctx); err != nil {
			t.Fatalf("Cycle failed: %v", err)
		}
	}
	if got := pm.restarts(); got != 5 {
		t.Fatalf("Expected 5 restarts in the first window, got %d", got)
	}
	if got := n.count("Watchdog Escalation"); got != 1 {
		t.Errorf("Expected one escalation notice, got %d", got)
	}

	// more failures while capped escalate only once
	*clock = start.Add(30 * time.Minute)
	_ = w.Cycle(ctx)
	if got := n.count("Watchdog Escalation"); got != 1 {
		t.Errorf("Expected escalation not to repeat, got %d", got)
	}

	// the minute-0 restart has aged out by minute 61
	*clock = start.Add(61 * time.Minute)
	_ = w.Cycle(ctx)
	if got := pm.restarts(); got != 6 {
		t.Errorf("Expected a restart once the window frees a slot, got %d", got)
	}
	rec, _ := w.Record("executor")
	if rec.Escalated {
		t.Error("Expected escalation to clear after a slot frees")
	}
	if len(rec.Restarts) > 5 {
		t.Errorf("Expected at most 5 timestamps in window, got %d", len(rec.Restarts))
	}
}

func TestWatchdog_SkipsOnlineAndAbsent(t *testing.T) {
	t.Parallel()

	pm := &mockProcessManager{StatusFunc: staticStatus(map[string]string{
		"classifier": "online",
		"unmonitored": "stopped",
	})}
	w, _ := newTestWatchdog(pm, &mockNotifier{}, store.NewMemoryStore(), "classifier", "drafter")

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if pm.restarts() != 0 {
		t.Errorf("Expected no restarts, got %v", pm.restarted)
	}
	if _, ok := w.Record("drafter"); ok {
		t.Error("Expected absent process to have no record")
	}
}

func TestWatchdog_StatusFailureSkipsCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status func(ctx context.Context) (map[string]string, error)
	}{
		{name: "error", status: func(ctx context.Context) (map[string]string, error) { return nil, errors.New("pm2 missing") }},
		{name: "empty", status: staticStatus(map[string]string{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pm := &mockProcessManager{StatusFunc: tt.status}
			w, _ := newTestWatchdog(pm, &mockNotifier{}, store.NewMemoryStore(), "executor")
			if err := w.Cycle(context.Background()); err != nil {
				t.Fatalf("Expected skipped cycle to succeed, got %v", err)
			}
			if pm.restarts() != 0 {
				t.Error("Expected no restarts")
			}
		})
	}
}

func TestWatchdog_LogsAndNotifiesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	n := &mockNotifier{}
	pm := &mockProcessManager{StatusFunc: staticStatus(map[string]string{"healthmon": "stopped"})}
	w, _ := newTestWatchdog(pm, n, s, "healthmon")

	_ = w.Cycle(ctx)

	data, err := s.ReadFile(ctx, LogRef)
	if err != nil {
		t.Fatalf("Expected watchdog.log: %v", err)
	}
	if !strings.Contains(string(data), "2026-03-15 00:00:00 - restarted healthmon") {
		t.Errorf("Unexpected log %q", data)
	}
	if n.count("Watchdog Alert") != 1 {
		t.Error("Expected a restart notification")
	}
}

func TestWatchdog_FailedRestartCountsAgainstWindow(t *testing.T) {
	t.Parallel()

	pm := &mockProcessManager{
		StatusFunc: staticStatus(map[string]string{"drafter": "errored"}),
		RestartErr: errors.New("exit status 1"),
	}
	n := &mockNotifier{}
	w, _ := newTestWatchdog(pm, n, store.NewMemoryStore(), "drafter")

	_ = w.Cycle(context.Background())
	rec, _ := w.Record("drafter")
	if len(rec.Restarts) != 1 {
		t.Errorf("Expected attempt to be recorded, got %d", len(rec.Restarts))
	}
	if n.count("Watchdog Alert") != 0 {
		t.Error("Expected no success notification for a failed restart")
	}
}

func TestPM2_Status(t *testing.T) {
	t.Parallel()

	out := `[{"name":"classifier","pm2_env":{"status":"online"}},{"name":"executor","pm2_env":{"status":"errored"}}]`
	pm := NewPM2WithRunner("pm2", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "pm2" || len(args) != 1 || args[0] != "jlist" {
			t.Errorf("Unexpected command %s %v", name, args)
		}
		return []byte(out), nil
	})

	status, err := pm.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status["classifier"] != "online" || status["executor"] != "errored" {
		t.Errorf("Unexpected status %v", status)
	}

	bad := NewPM2WithRunner("pm2", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("not json"), nil
	})
	if _, err := bad.Status(context.Background()); err == nil {
		t.Error("Expected parse error")
	}
}

func TestPM2_Restart(t *testing.T) {
	t.Parallel()

	var got []string
	pm := NewPM2WithRunner("", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return nil, nil
	})
	if err := pm.Restart(context.Background(), "executor"); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if strings.Join(got, " ") != "pm2 restart executor" {
		t.Errorf("Unexpected command %v", got)
	}
}

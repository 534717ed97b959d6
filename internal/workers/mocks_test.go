package workers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/dashboard"
	"github.com/benvon/vaultflow/internal/ledger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/services/ai"
)

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// mockReasoner answers prompts with AskFunc and records them
type mockReasoner struct {
	mu      sync.Mutex
	AskFunc func(ctx context.Context, prompt string) (string, error)
	prompts []string
}

func (m *mockReasoner) Ask(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.AskFunc != nil {
		return m.AskFunc(ctx, prompt)
	}
	return "", ai.ErrMalformedResponse
}

func (m *mockReasoner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

var _ ai.Reasoner = (*mockReasoner)(nil)

// answerByItem returns the canned answer whose key appears in the prompt's item line
func answerByItem(answers map[string]string) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		for key, answer := range answers {
			if strings.Contains(prompt, "Item: "+key) {
				return answer, nil
			}
		}
		return "", ai.ErrMalformedResponse
	}
}

type recordingLedger struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
	err     error
}

func (r *recordingLedger) Log(ctx context.Context, entry models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func (r *recordingLedger) all() []models.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditLogEntry(nil), r.entries...)
}

var _ ledger.Recorder = (*recordingLedger)(nil)

type recordingDashboard struct {
	mu      sync.Mutex
	updates []models.Tally
}

func (r *recordingDashboard) Update(ctx context.Context, tally models.Tally) (*dashboard.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, tally)
	return &dashboard.Snapshot{Tally: tally}, nil
}

var _ DashboardUpdater = (*recordingDashboard)(nil)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (r *recordingNotifier) Notify(ctx context.Context, title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

var _ notify.Notifier = (*recordingNotifier)(nil)

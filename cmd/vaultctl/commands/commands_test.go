package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benvon/vaultflow/internal/ledger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/queue"
	"github.com/benvon/vaultflow/internal/store"
	"go.uber.org/zap"
)

func seedVault(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	fs := store.NewFSStore(dir)
	ctx := context.Background()
	docs := []struct {
		ref models.Ref
		doc *models.Document
	}{
		{models.NewRef(models.StageRaw, "EMAIL_a.md"), models.NewDocument(models.DocTypeEmail, "a\n")},
		{models.NewRef(models.StageRaw, "EMAIL_b.md"), models.NewDocument(models.DocTypeEmail, "b\n")},
		{models.NewRef(models.StagePendingApproval.Sub("email"), "DRAFT_c.md"), models.NewDocument(models.DocTypeDraft, "c\n")},
		{models.NewRef(models.StageDone, "EMAIL_d.md"), models.NewDocument(models.DocTypeEmail, "d\n")},
	}
	for _, d := range docs {
		if err := fs.Write(ctx, d.ref, d.doc); err != nil {
			t.Fatalf("Failed to seed %s: %v", d.ref, err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStagesCmd(t *testing.T) {
	t.Parallel()

	vault := seedVault(t)
	out, err := execute(t, "stages", "--vault", vault, "--json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var counts []StageCount
	if err := json.Unmarshal([]byte(out), &counts); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out)
	}
	got := make(map[string]int, len(counts))
	for _, c := range counts {
		got[c.Stage] = c.Count
	}

	want := map[string]int{
		"Needs_Action":           2,
		"Pending_Approval":       0,
		"Pending_Approval/email": 1,
		"Done":                   1,
		"Approved":               0,
	}
	for stage, n := range want {
		if got[stage] != n {
			t.Errorf("Expected %d documents in %s, got %d", n, stage, got[stage])
		}
	}
}

func TestStagesCmd_Table(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "stages", "--vault", seedVault(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{"STAGE", "DOCUMENTS", "Needs_Action"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLedgerShowCmd(t *testing.T) {
	t.Parallel()

	vault := seedVault(t)
	day := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	l := ledger.New(store.NewFSStore(vault), zap.NewNop())
	if err := l.Log(context.Background(), models.AuditLogEntry{
		Timestamp:      day,
		ActionType:     "reply_email",
		Actor:          "executor",
		Target:         "EMAIL_a.md",
		ApprovalStatus: models.ApprovalApproved,
		Result:         models.ResultSuccess,
	}); err != nil {
		t.Fatalf("Failed to seed ledger: %v", err)
	}

	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		contains []string
	}{
		{
			name:     "table",
			args:     []string{"ledger", "show", "--vault", vault, "--date", "2026-03-15"},
			contains: []string{"reply_email", "executor", "EMAIL_a.md", "success"},
		},
		{
			name:     "json",
			args:     []string{"ledger", "show", "--vault", vault, "--date", "2026-03-15", "--json"},
			contains: []string{`"action_type": "reply_email"`},
		},
		{
			name:     "empty day",
			args:     []string{"ledger", "show", "--vault", vault, "--date", "2026-03-16"},
			contains: []string{"No audit entries for 2026-03-16"},
		},
		{
			name:    "mirror without database",
			args:    []string{"ledger", "show", "--vault", vault, "--source", "mirror"},
			wantErr: os.Getenv("AUDIT_DATABASE_URL") == "",
		},
		{
			name:    "unknown source",
			args:    []string{"ledger", "show", "--vault", vault, "--source", "s3"},
			wantErr: true,
		},
		{
			name:    "bad date",
			args:    []string{"ledger", "show", "--vault", vault, "--date", "15/03/2026"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected output to contain %q, got:\n%s", want, out)
				}
			}
		})
	}
}

func TestDashboardRenderCmd(t *testing.T) {
	t.Parallel()

	vault := seedVault(t)
	out, err := execute(t, "dashboard", "render", "--vault", vault, "--write")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "- Pending Actions: 2") {
		t.Errorf("Expected raw count in output, got:\n%s", out)
	}

	written, err := os.ReadFile(filepath.Join(vault, "Dashboard.md"))
	if err != nil {
		t.Fatalf("Expected dashboard file: %v", err)
	}
	if string(written) != out {
		t.Error("Expected written dashboard to match rendered output")
	}
}

func TestPostGenerateCmd_RequiresReasoner(t *testing.T) {
	t.Parallel()

	if os.Getenv("OPENAI_API_KEY") != "" {
		t.Skip("OPENAI_API_KEY is set")
	}
	_, err := execute(t, "post", "generate", "--vault", seedVault(t))
	if err == nil {
		t.Fatal("Expected error without a Reasoner key")
	}
}

type fakeDelivery struct {
	event  *queue.Event
	acked  bool
	nacked bool
	ackErr error
}

func (d *fakeDelivery) GetEvent() *queue.Event { return d.event }

func (d *fakeDelivery) Ack() error {
	d.acked = true
	return d.ackErr
}

func (d *fakeDelivery) Nack(requeue bool) error {
	d.nacked = requeue
	return d.ackErr
}

var _ queue.MessageInterface = (*fakeDelivery)(nil)

func TestTailEvents(t *testing.T) {
	t.Parallel()

	newDeliveries := func() []*fakeDelivery {
		first := queue.NewEvent(queue.EventProcessRestarted, "Process restarted", "classifier was stopped")
		first.Source = "watchdog"
		second := queue.NewEvent(queue.EventDraftReady, "Draft ready", "Pending_Approval/DRAFT_a.md")
		third := queue.NewEvent(queue.EventHealthAlert, "Health", "sync stale")
		return []*fakeDelivery{{event: first}, {event: second}, {event: third, ackErr: errors.New("channel closed")}}
	}

	tests := []struct {
		name      string
		opts      tailOptions
		wantLines int
		wantAck   bool
	}{
		{name: "acks every event", opts: tailOptions{}, wantLines: 3, wantAck: true},
		{name: "requeue", opts: tailOptions{requeue: true}, wantLines: 3},
		{name: "limit", opts: tailOptions{limit: 2}, wantLines: 2, wantAck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deliveries := newDeliveries()
			msgs := make(chan *fakeDelivery, len(deliveries))
			for _, d := range deliveries {
				msgs <- d
			}
			close(msgs)
			errs := make(chan error)

			var out bytes.Buffer
			if err := tailEvents[*fakeDelivery](context.Background(), &out, msgs, errs, tt.opts); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if len(lines) != tt.wantLines {
				t.Fatalf("Expected %d lines, got %d:\n%s", tt.wantLines, len(lines), out.String())
			}
			if !strings.Contains(lines[0], "process_restarted") || !strings.Contains(lines[0], "watchdog") {
				t.Errorf("Unexpected first line: %s", lines[0])
			}
			for _, d := range deliveries[:tt.wantLines] {
				if d.acked != tt.wantAck {
					t.Errorf("Expected acked=%v for %s", tt.wantAck, d.event.Title)
				}
				if d.nacked != tt.opts.requeue {
					t.Errorf("Expected requeue=%v for %s", tt.opts.requeue, d.event.Title)
				}
			}
		})
	}
}

func TestTailEvents_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs := make(chan *fakeDelivery)
	errs := make(chan error)
	if err := tailEvents[*fakeDelivery](ctx, &bytes.Buffer{}, msgs, errs, tailOptions{}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

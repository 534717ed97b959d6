package workers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
)

func draftBlock(name, original, body string) string {
	return fmt.Sprintf("=== DRAFT: %s ===\n---\ntype: draft\ntarget: someone\noriginal_file: %s\n---\n\n%s\n=== END DRAFT ===\n", name, original, body)
}

func newTestDrafter(s store.Store, r ai.Reasoner, batch int) *Drafter {
	d := NewDrafter(s, r, nil, DrafterConfig{BatchSize: batch, Timeout: time.Second})
	d.SetClock(fixedClock)
	return d
}

func TestDrafter_CreatesOneDraftPerItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(models.StageRaw, "EMAIL_a.md", askItem)
	s.Put(models.StageRaw, "EMAIL_b.md", infoItem)

	r := &mockReasoner{AskFunc: func(ctx context.Context, prompt string) (string, error) {
		return "Here you go:\n" +
			draftBlock("EMAIL_a.md", "EMAIL_a.md", "Quote attached.") +
			draftBlock("EMAIL_b", "EMAIL_b.md", "You're welcome."), nil
	}}

	run, err := newTestDrafter(s, r, 10).RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if len(run.Created) != 2 {
		t.Fatalf("Expected 2 drafts, got %+v", run)
	}
	want := []string{"DRAFT_EMAIL_a.md", "DRAFT_EMAIL_b.md"}
	if got := s.Names(models.StagePendingApproval); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	doc, err := s.Read(ctx, models.NewRef(models.StagePendingApproval, "DRAFT_EMAIL_a.md"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.Type() != models.DocTypeDraft || doc.OriginalFile() != "EMAIL_a.md" {
		t.Errorf("Unexpected draft header %+v", doc.Header)
	}
	if doc.Header.Value(models.FieldDraftedAt) != "2026-03-15T10:30:00Z" {
		t.Errorf("Unexpected drafted_at %q", doc.Header.Value(models.FieldDraftedAt))
	}
	if !strings.Contains(doc.Body, "Quote attached.") {
		t.Errorf("Unexpected body %q", doc.Body)
	}

	// Raw items are left in place for the classifier
	if got := s.Names(models.StageRaw); len(got) != 2 {
		t.Errorf("Expected Raw untouched, got %v", got)
	}
	status, err := s.ReadFile(ctx, StatusRef)
	if err != nil || !strings.Contains(string(status), "**Drafted this run:** 2") {
		t.Errorf("Unexpected status %q %v", status, err)
	}
	if line, _ := s.ReadFile(ctx, DrafterLogRef); !strings.Contains(string(line), "drafted 2 of 2") {
		t.Errorf("Unexpected drafter log %q", line)
	}
}

func TestDrafter_RerunCreatesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(models.StageRaw, "a.md", askItem)
	r := &mockReasoner{AskFunc: func(ctx context.Context, prompt string) (string, error) {
		return draftBlock("a.md", "a.md", "reply"), nil
	}}
	d := newTestDrafter(s, r, 10)

	if _, err := d.RunPass(ctx); err != nil {
		t.Fatalf("first RunPass failed: %v", err)
	}
	run, err := d.RunPass(ctx)
	if err != nil {
		t.Fatalf("second RunPass failed: %v", err)
	}
	if len(run.Created) != 0 || run.Drafted != 1 {
		t.Errorf("Expected no new drafts, got %+v", run)
	}
	if r.calls() != 1 {
		t.Errorf("Expected the Reasoner to be skipped on rerun, got %d calls", r.calls())
	}
}

func TestDrafter_DedupAcrossDraftingStages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(models.StageRaw, "a.md", askItem)
	s.Put(models.StageRaw, "b.md", askItem)
	s.Put(models.StageRaw, "c.md", askItem)
	s.Put(models.StagePendingApproval.Sub("email"), "DRAFT_a.md", "---\ntype: draft\noriginal_file: a.md\n---\n\nreply\n")
	s.Put(models.StageApproved, "DRAFT_b.md", "---\ntype: draft\noriginal_file: b.md\n---\n\nreply\n")
	// not a draft, so it does not count
	s.Put(models.StagePendingApproval, "c.md", "---\ntype: email\noriginal_file: c.md\n---\n\n")

	var prompt string
	r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) {
		prompt = p
		return draftBlock("c.md", "c.md", "reply"), nil
	}}

	run, err := newTestDrafter(s, r, 10).RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if run.Drafted != 2 || run.Undrafted != 1 || len(run.Created) != 1 {
		t.Errorf("Unexpected run %+v", run)
	}
	if strings.Contains(prompt, "### a.md") || strings.Contains(prompt, "### b.md") || !strings.Contains(prompt, "### c.md") {
		t.Errorf("Expected only c.md in the batch, got %q", prompt)
	}
}

func TestDrafter_BatchSizeAndTruncation(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	for i := 0; i < 5; i++ {
		s.Put(models.StageRaw, fmt.Sprintf("item_%d.md", i), strings.Repeat("x", 5000))
	}
	var prompt string
	r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "", nil
	}}

	run, err := newTestDrafter(s, r, 2).RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if run.Undrafted != 5 {
		t.Errorf("Expected 5 undrafted, got %d", run.Undrafted)
	}
	if !strings.Contains(prompt, "Here are 2 items") || strings.Contains(prompt, "item_2.md") {
		t.Errorf("Expected a batch of 2, got prompt head %q", prompt[:80])
	}
	if strings.Contains(prompt, strings.Repeat("x", ai.MaxDraftSourceChars+1)) {
		t.Error("Expected bodies truncated to the per-item limit")
	}
}

func TestDrafter_MatchingRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   map[string]string // draft name -> original_file
	}{
		{
			name:   "by block name",
			output: draftBlock("b.md", "", "for b") + draftBlock("a", "", "for a"),
			want:   map[string]string{"DRAFT_b.md": "b.md", "DRAFT_a.md": "a.md"},
		},
		{
			name:   "by original_file header",
			output: draftBlock("reply to bob", "b.md", "for b"),
			want:   map[string]string{"DRAFT_reply_to_bob.md": "b.md"},
		},
		{
			name:   "by position when the name is missing",
			output: "=== DRAFT:\n---\ntype: draft\n---\n\nfirst\n=== END DRAFT ===\n=== DRAFT:\n---\ntype: draft\n---\n\nsecond",
			want:   map[string]string{"DRAFT_draft_0.md": "a.md", "DRAFT_draft_1.md": "b.md"},
		},
		{
			name:   "a source is not drafted twice",
			output: draftBlock("a.md", "a.md", "one") + draftBlock("again", "a.md", "two"),
			want:   map[string]string{"DRAFT_a.md": "a.md"},
		},
		{
			name:   "extra blocks beyond the batch are dropped",
			output: draftBlock("x", "", "1") + draftBlock("y", "", "2") + draftBlock("z", "", "3"),
			want:   map[string]string{"DRAFT_x.md": "a.md", "DRAFT_y.md": "b.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := store.NewMemoryStore()
			s.Put(models.StageRaw, "a.md", askItem)
			s.Put(models.StageRaw, "b.md", infoItem)
			r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) { return tt.output, nil }}

			if _, err := newTestDrafter(s, r, 10).RunPass(ctx); err != nil {
				t.Fatalf("RunPass failed: %v", err)
			}
			got := map[string]string{}
			for _, name := range s.Names(models.StagePendingApproval) {
				doc, _ := s.Read(ctx, models.NewRef(models.StagePendingApproval, name))
				got[name] = doc.OriginalFile()
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDrafter_ReasonerFailureIsReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(models.StageRaw, "a.md", askItem)
	r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) { return "", ai.ErrTimeout }}

	_, err := newTestDrafter(s, r, 10).RunPass(ctx)
	if !errors.Is(err, ai.ErrTimeout) {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if len(s.Names(models.StagePendingApproval)) != 0 {
		t.Error("Expected no drafts")
	}
	status, _ := s.ReadFile(ctx, StatusRef)
	if !strings.Contains(string(status), "**Status:** error") {
		t.Errorf("Expected error status, got %q", status)
	}
}

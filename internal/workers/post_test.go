package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/benvon/vaultflow/internal/dashboard"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
)

func newTestPostGenerator(s store.Store, r ai.Reasoner, rec *recordingLedger, n *recordingNotifier) *PostGenerator {
	p := NewPostGenerator(s, r, rec, n, nil, time.Second)
	p.SetClock(fixedClock)
	return p
}

func TestPostName(t *testing.T) {
	t.Parallel()

	if got := PostName(testNow); got != "LINKEDIN_POST_2026-03-15.md" {
		t.Errorf("Unexpected post name %q", got)
	}
}

func TestPostGenerator_Generate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(models.StageRoot, dashboard.FileName, "# Dashboard\n- Done: 12\n")
	s.Put(models.StageRoot, HandbookName, "We build automations for small shops.")
	for i := 0; i < 7; i++ {
		s.Put(models.StageLogs, fmt.Sprintf("CLASSIFY_20260315_10%02d00_item.md", i), fmt.Sprintf("classification log %d", i))
	}
	s.Put(models.StageLogs, "drafter.log", "not activity")

	r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) {
		return "  Big week for automation! #ai  \n", nil
	}}
	rec := &recordingLedger{}
	n := &recordingNotifier{}

	ref, created, err := newTestPostGenerator(s, r, rec, n).Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !created || ref.Name != "LINKEDIN_POST_2026-03-15.md" || ref.Stage != models.StagePendingApproval {
		t.Fatalf("Unexpected result %v created=%v", ref, created)
	}

	prompt := r.prompts[0]
	for _, want := range []string{"- Done: 12", "small shops", "classification log 6", "classification log 2"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected %q in prompt", want)
		}
	}
	for _, unwanted := range []string{"classification log 1", "not activity"} {
		if strings.Contains(prompt, unwanted) {
			t.Errorf("Did not expect %q in prompt", unwanted)
		}
	}

	doc, err := s.Read(ctx, ref)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.Type() != models.DocTypePost || doc.Header.Value("platform") != "linkedin" {
		t.Errorf("Unexpected header %+v", doc.Header)
	}
	if strings.TrimSpace(doc.Body) != "Big week for automation! #ai" {
		t.Errorf("Unexpected body %q", doc.Body)
	}

	if entries := rec.all(); len(entries) != 1 || entries[0].ActionType != "draft_post" {
		t.Errorf("Expected one draft_post entry, got %+v", entries)
	}
	if n.count() != 1 || n.titles[0] != notify.TitlePost {
		t.Errorf("Expected one post notification, got %v", n.titles)
	}
}

func TestPostGenerator_SkipsWhenPostExists(t *testing.T) {
	t.Parallel()

	for _, stage := range []models.Stage{models.StagePendingApproval, models.StageDone} {
		t.Run(string(stage), func(t *testing.T) {
			t.Parallel()

			s := store.NewMemoryStore()
			s.Put(stage, "LINKEDIN_POST_2026-03-15.md", "already written")
			r := &mockReasoner{}

			_, created, err := newTestPostGenerator(s, r, &recordingLedger{}, &recordingNotifier{}).Generate(context.Background())
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if created || r.calls() != 0 {
				t.Errorf("Expected a skip without asking, got created=%v calls=%d", created, r.calls())
			}
		})
	}
}

func TestPostGenerator_EmptyAnswer(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	r := &mockReasoner{AskFunc: func(ctx context.Context, p string) (string, error) { return "   ", nil }}
	n := &recordingNotifier{}

	_, created, err := newTestPostGenerator(s, r, &recordingLedger{}, n).Generate(context.Background())
	if !errors.Is(err, ai.ErrMalformedResponse) {
		t.Fatalf("Expected malformed response, got %v", err)
	}
	if created || n.count() != 0 || len(s.Names(models.StagePendingApproval)) != 0 {
		t.Error("Expected nothing written or announced")
	}
}

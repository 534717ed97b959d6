package workers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/dashboard"
	"github.com/benvon/vaultflow/internal/ledger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/benvon/vaultflow/internal/validation"
	"go.uber.org/zap"
)

const (
	// HandbookName is the business handbook at the vault root
	HandbookName = "Company_Handbook.md"

	maxPostLogs     = 5
	maxPostLogChars = 500
)

// PostGenerator drafts one promotional post per day for approval
type PostGenerator struct {
	store    store.Store
	reasoner ai.Reasoner
	ledger   ledger.Recorder
	notifier notify.Notifier
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewPostGenerator creates a post generator. The ledger may be nil.
func NewPostGenerator(s store.Store, reasoner ai.Reasoner, rec ledger.Recorder, n notify.Notifier, logger *zap.Logger, timeout time.Duration) *PostGenerator {
	if timeout <= 0 {
		timeout = DefaultReasonerTimeout
	}
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostGenerator{store: s, reasoner: reasoner, ledger: rec, notifier: n, logger: logger, timeout: timeout, now: time.Now}
}

// SetClock overrides the clock
func (p *PostGenerator) SetClock(clock func() time.Time) {
	p.now = clock
}

// PostName returns the post file name for a day
func PostName(day time.Time) string {
	return fmt.Sprintf("LINKEDIN_POST_%s.md", day.Format(time.DateOnly))
}

// Generate writes today's post to Pending_Approval. It reports false without
// calling the Reasoner when today's post already exists.
func (p *PostGenerator) Generate(ctx context.Context) (models.Ref, bool, error) {
	now := p.now()
	ref := models.NewRef(models.StagePendingApproval, PostName(now))

	for _, stage := range []models.Stage{models.StagePendingApproval, models.StageDone} {
		ok, err := store.Exists(ctx, p.store, models.NewRef(stage, ref.Name))
		if err != nil {
			return ref, false, err
		}
		if ok {
			p.logger.Info("post_already_exists", zap.String("post", ref.Name), zap.String("stage", string(stage)))
			return ref, false, nil
		}
	}

	dash := p.readOptional(ctx, dashboard.Ref)
	handbook := p.readOptional(ctx, models.NewRef(models.StageRoot, HandbookName))
	activity, err := p.recentActivity(ctx)
	if err != nil {
		return ref, false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	text, err := p.reasoner.Ask(callCtx, ai.BuildPostPrompt(dash, handbook, activity))
	if err != nil {
		return ref, false, fmt.Errorf("post request failed: %w", err)
	}
	text = validation.SanitizeText(text)
	if text == "" {
		return ref, false, fmt.Errorf("post request failed: %w", ai.ErrMalformedResponse)
	}

	doc := models.NewDocument(models.DocTypePost, text+"\n")
	doc.Header.Set("platform", "linkedin")
	doc.Header.Set(models.FieldCreated, now.Format(time.RFC3339))
	if err := p.store.Create(ctx, ref, doc); err != nil {
		if errors.Is(err, store.ErrExists) {
			return ref, false, nil
		}
		return ref, false, fmt.Errorf("failed to write post: %w", err)
	}

	if p.ledger != nil {
		entry := models.AuditLogEntry{
			Timestamp:      now,
			ActionType:     "draft_post",
			Actor:          "post_generator",
			Target:         ref.Name,
			Parameters:     map[string]any{"platform": "linkedin", "chars": len(text)},
			ApprovalStatus: models.ApprovalAuto,
			Result:         models.ResultSuccess,
		}
		if err := p.ledger.Log(ctx, entry); err != nil {
			p.logger.Error("post_audit_failed", zap.Error(err))
		}
	}
	p.notifier.Notify(ctx, notify.TitlePost, fmt.Sprintf("%s is waiting for approval", ref))
	p.logger.Info("post_drafted", zap.String("post", ref.String()))
	return ref, true, nil
}

func (p *PostGenerator) readOptional(ctx context.Context, ref models.Ref) string {
	data, err := p.store.ReadFile(ctx, ref)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("post_context_unreadable", zap.String("file", ref.String()), zap.Error(err))
		}
		return ""
	}
	return string(data)
}

// recentActivity returns the newest classification and execution logs
func (p *PostGenerator) recentActivity(ctx context.Context) ([]string, error) {
	refs, err := p.store.List(ctx, models.StageLogs)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", models.StageLogs, err)
	}

	type logFile struct {
		ref   models.Ref
		stamp string
	}
	var logs []logFile
	for _, ref := range refs {
		for _, prefix := range []string{"CLASSIFY_", "EXEC_"} {
			if strings.HasPrefix(ref.Name, prefix) {
				logs = append(logs, logFile{ref: ref, stamp: strings.TrimPrefix(ref.Name, prefix)})
			}
		}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].stamp > logs[j].stamp })
	if len(logs) > maxPostLogs {
		logs = logs[:maxPostLogs]
	}

	activity := make([]string, 0, len(logs))
	for _, l := range logs {
		data, err := p.store.ReadFile(ctx, l.ref)
		if err != nil {
			continue
		}
		activity = append(activity, ai.TruncateRunes(string(data), maxPostLogChars))
	}
	return activity, nil
}

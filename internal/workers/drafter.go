package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logpkg "github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// StatusRef is the drafter's latest run report
	StatusRef = models.NewRef(models.StageUpdates, "CLOUD_STATUS.md")
	// DrafterLogRef receives one line per run
	DrafterLogRef = models.NewRef(models.StageLogs, "drafter.log")
)

// DrafterConfig tunes the drafter
type DrafterConfig struct {
	BatchSize int
	Timeout   time.Duration
}

// DraftRun summarizes one drafter pass
type DraftRun struct {
	Raw       int
	Drafted   int
	Undrafted int
	Created   []models.Ref
	Dropped   int
}

// Drafter writes at most one Draft per Raw item into Pending_Approval
type Drafter struct {
	store    store.Store
	reasoner ai.Reasoner
	logger   *zap.Logger
	cfg      DrafterConfig
	now      func() time.Time
}

// NewDrafter creates a drafter
func NewDrafter(s store.Store, reasoner ai.Reasoner, logger *zap.Logger, cfg DrafterConfig) *Drafter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDraftBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDraftTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{store: s, reasoner: reasoner, logger: logger, cfg: cfg, now: time.Now}
}

// SetClock overrides the clock
func (d *Drafter) SetClock(clock func() time.Time) {
	d.now = clock
}

// DraftedOriginals returns the original_file of every Draft in a drafting stage
func (d *Drafter) DraftedOriginals(ctx context.Context) (map[string]bool, error) {
	drafted := make(map[string]bool)
	for _, stage := range models.DraftingStages() {
		refs, err := d.store.List(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", stage, err)
		}
		for _, ref := range refs {
			doc, err := d.store.Read(ctx, ref)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("failed to read %s: %w", ref, err)
			}
			if doc.Type() == models.DocTypeDraft && doc.OriginalFile() != "" {
				drafted[doc.OriginalFile()] = true
			}
		}
	}
	return drafted, nil
}

// RunPass drafts a batch of undrafted Raw items
func (d *Drafter) RunPass(ctx context.Context) (*DraftRun, error) {
	ctx, span := tracer.Start(ctx, "drafter.pass")
	defer span.End()

	run, err := d.runPass(ctx)
	if run != nil {
		span.SetAttributes(attribute.Int("drafter.created", len(run.Created)))
	}
	d.writeStatus(ctx, run, err)
	return run, err
}

func (d *Drafter) runPass(ctx context.Context) (*DraftRun, error) {
	run := &DraftRun{}

	drafted, err := d.DraftedOriginals(ctx)
	if err != nil {
		return run, err
	}
	raw, err := d.store.List(ctx, models.StageRaw)
	if err != nil {
		return run, fmt.Errorf("failed to list %s: %w", models.StageRaw, err)
	}
	run.Raw = len(raw)

	var sources []ai.DraftSource
	for _, ref := range raw {
		if drafted[ref.Name] {
			run.Drafted++
			continue
		}
		run.Undrafted++
		if len(sources) >= d.cfg.BatchSize {
			continue
		}
		doc, err := d.store.Read(ctx, ref)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return run, fmt.Errorf("failed to read %s: %w", ref, err)
		}
		sources = append(sources, ai.DraftSource{Name: ref.Name, Text: string(doc.Render())})
	}

	if len(sources) == 0 {
		d.logger.Info("drafter_nothing_to_draft", zap.Int("raw", run.Raw), zap.Int("drafted", run.Drafted))
		return run, nil
	}

	now := d.now()
	ctx = ai.WithRequestID(ctx, uuid.NewString())
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	output, err := d.reasoner.Ask(callCtx, ai.BuildDraftPrompt(sources, now))
	if err != nil {
		logReasonerError(ctx, d.logger, err)
		return run, fmt.Errorf("draft batch failed: %w", err)
	}

	blocks := ai.ParseDraftBlocks(output)
	d.logger.Info("drafter_batch_answered", zap.Int("sources", len(sources)), zap.Int("blocks", len(blocks)))

	used := make([]bool, len(sources))
	for i, block := range blocks {
		idx := matchSource(block, i, sources)
		if idx < 0 {
			run.Dropped++
			d.logger.Warn("draft_unmatched", zap.String("block", logpkg.SanitizeName(block.Name)))
			continue
		}
		if used[idx] {
			run.Dropped++
			d.logger.Warn("draft_duplicate_source",
				zap.String("block", logpkg.SanitizeName(block.Name)),
				zap.String("source", sources[idx].Name),
			)
			continue
		}

		ref, err := d.createDraft(ctx, block, sources[idx].Name, now)
		if err != nil {
			run.Dropped++
			d.logger.Error("draft_create_failed",
				zap.String("source", sources[idx].Name),
				zap.Error(err),
			)
			continue
		}
		used[idx] = true
		run.Created = append(run.Created, ref)
		d.logger.Info("draft_created", zap.String("draft", ref.String()), zap.String("source", sources[idx].Name))
	}
	return run, nil
}

// matchSource finds the batch item a block answers: by block name, then by its
// original_file header, then by position. It returns -1 when nothing fits.
func matchSource(block ai.DraftBlock, pos int, sources []ai.DraftSource) int {
	lookup := func(name string) int {
		name = strings.TrimSpace(name)
		if name == "" {
			return -1
		}
		for i, src := range sources {
			if src.Name == name {
				return i
			}
		}
		stem := strings.TrimSuffix(name, store.DocumentExt)
		for i, src := range sources {
			if strings.TrimSuffix(src.Name, store.DocumentExt) == stem {
				return i
			}
		}
		return -1
	}

	if !block.Synthetic {
		if idx := lookup(block.Name); idx >= 0 {
			return idx
		}
	}
	if idx := lookup(block.OriginalFile()); idx >= 0 {
		return idx
	}
	if pos < len(sources) {
		return pos
	}
	return -1
}

func (d *Drafter) createDraft(ctx context.Context, block ai.DraftBlock, source string, now time.Time) (models.Ref, error) {
	doc := block.Doc.Clone()
	doc.Header.Set(models.FieldType, string(models.DocTypeDraft))
	doc.Header.Set(models.FieldOriginalFile, source)
	doc.Header.Set(models.FieldDraftedAt, now.Format(time.RFC3339))

	names := []string{ai.SafeName(block.Name)}
	if alt := ai.SafeName(source); alt != names[0] {
		names = append(names, alt)
	}
	var err error
	for _, name := range names {
		ref := models.NewRef(models.StagePendingApproval, "DRAFT_"+name+store.DocumentExt)
		err = d.store.Create(ctx, ref, doc)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, store.ErrExists) {
			return models.Ref{}, err
		}
	}
	return models.Ref{}, err
}

func (d *Drafter) writeStatus(ctx context.Context, run *DraftRun, runErr error) {
	if run == nil {
		run = &DraftRun{}
	}
	now := d.now()
	status := "ok"
	if runErr != nil {
		status = "error: " + logpkg.SanitizeError(runErr)
	}

	var b strings.Builder
	b.WriteString("# Cloud Agent Status\n\n")
	fmt.Fprintf(&b, "- **Last run:** %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Status:** %s\n", status)
	fmt.Fprintf(&b, "- **Needs_Action items:** %d\n", run.Raw)
	fmt.Fprintf(&b, "- **Already drafted:** %d\n", run.Drafted)
	fmt.Fprintf(&b, "- **Awaiting draft:** %d\n", run.Undrafted)
	fmt.Fprintf(&b, "- **Drafted this run:** %d\n", len(run.Created))
	for _, ref := range run.Created {
		fmt.Fprintf(&b, "  - %s\n", ref)
	}
	if err := d.store.WriteFile(ctx, StatusRef, []byte(b.String())); err != nil {
		d.logger.Error("drafter_status_failed", zap.Error(err))
	}

	line := fmt.Sprintf("[%s] drafted %d of %d undrafted items (%s)\n", now.Format(time.DateTime), len(run.Created), run.Undrafted, status)
	if err := d.store.AppendFile(ctx, DrafterLogRef, []byte(line)); err != nil {
		d.logger.Error("drafter_log_failed", zap.Error(err))
	}
}

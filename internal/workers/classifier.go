package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/ledger"
	logpkg "github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ClassifierConfig tunes the classifier
type ClassifierConfig struct {
	// Timeout bounds each Reasoner call
	Timeout time.Duration
	// Fallback is applied when the Reasoner fails or answers garbage
	Fallback models.Category
}

// Classifier routes every Raw document to Done or Pending_Approval
type Classifier struct {
	store     store.Store
	reasoner  ai.Reasoner
	ledger    ledger.Recorder
	dashboard DashboardUpdater
	logger    *zap.Logger
	cfg       ClassifierConfig
	now       func() time.Time
}

// NewClassifier creates a classifier. The dashboard may be nil.
func NewClassifier(s store.Store, reasoner ai.Reasoner, rec ledger.Recorder, dash DashboardUpdater, logger *zap.Logger, cfg ClassifierConfig) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReasonerTimeout
	}
	if !cfg.Fallback.IsValid() {
		cfg.Fallback = models.CategoryNoise
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		store:     s,
		reasoner:  reasoner,
		ledger:    rec,
		dashboard: dash,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the clock
func (c *Classifier) SetClock(clock func() time.Time) {
	c.now = clock
}

// RunPass classifies every Raw document once. Item failures are logged and
// skipped; only a failure to list Raw fails the pass.
func (c *Classifier) RunPass(ctx context.Context) (models.Tally, error) {
	ctx, span := tracer.Start(ctx, "classifier.pass")
	defer span.End()

	refs, err := c.store.List(ctx, models.StageRaw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list %s: %w", models.StageRaw, err)
	}

	tally := models.NewTally()
	for _, ref := range refs {
		if ctx.Err() != nil {
			return tally, ctx.Err()
		}
		var category models.Category
		err := guard(func() error {
			var itemErr error
			category, itemErr = c.processItem(ctx, ref)
			return itemErr
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.logger.Debug("classify_item_vanished", zap.String("document", logpkg.SanitizeName(ref.Name)))
				continue
			}
			c.logger.Error("classify_item_failed",
				zap.String("document", logpkg.SanitizeName(ref.Name)),
				zap.Error(err),
			)
			continue
		}
		tally[category]++
	}

	span.SetAttributes(attribute.Int("classifier.processed", tally.Total()))
	if tally.Total() == 0 {
		return tally, nil
	}

	c.logger.Info("classify_pass_completed",
		zap.Int("processed", tally.Total()),
		zap.Int("noise", tally[models.CategoryNoise]),
		zap.Int("automated", tally[models.CategoryAutomated]),
		zap.Int("informational", tally[models.CategoryInformational]),
		zap.Int("actionable", tally[models.CategoryActionable]),
	)
	if c.dashboard != nil {
		if _, err := c.dashboard.Update(ctx, tally); err != nil {
			c.logger.Error("dashboard_update_failed", zap.Error(err))
		}
	}
	return tally, nil
}

// Classify asks the Reasoner for a category and falls back on any failure
func (c *Classifier) Classify(ctx context.Context, name string, doc *models.Document) models.Classification {
	if ai.ExtractRequestID(ctx) == "" {
		ctx = itemContext(ctx, name)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var raw string
	err := guard(func() error {
		var askErr error
		raw, askErr = c.reasoner.Ask(callCtx, ai.BuildClassificationPrompt(name, doc))
		return askErr
	})
	if err != nil {
		logReasonerError(ctx, c.logger, err)
	} else {
		var cls models.Classification
		cls, err = ai.ParseClassification(raw)
		if err == nil {
			return cls
		}
	}

	c.logger.Warn("classify_fallback",
		zap.String("document", logpkg.SanitizeName(name)),
		zap.String("request_id", ai.ExtractRequestID(ctx)),
		zap.String("fallback", string(c.cfg.Fallback)),
		zap.Error(err),
	)
	return models.Classification{
		Category:          c.cfg.Fallback,
		Description:       "classification unavailable: " + logpkg.SanitizeError(err),
		RecommendedAction: "none",
		Fallback:          true,
	}
}

func (c *Classifier) processItem(ctx context.Context, ref models.Ref) (models.Category, error) {
	ctx, span := tracer.Start(itemContext(ctx, ref.Name), "classifier.item")
	defer span.End()
	span.SetAttributes(attribute.String("document", ref.Name), attribute.String("request_id", ai.ExtractRequestID(ctx)))

	doc, err := c.store.Read(ctx, ref)
	if err != nil {
		return "", err
	}

	cls := c.Classify(ctx, ref.Name, doc)
	now := c.now()
	span.SetAttributes(attribute.String("classification", string(cls.Category)), attribute.Bool("fallback", cls.Fallback))

	planRef := models.NewRef(models.StagePlans, "PLAN_"+ref.Stem()+store.DocumentExt)
	if err := c.store.Create(ctx, planRef, buildPlan(ref, cls, now)); err != nil {
		if !errors.Is(err, store.ErrExists) {
			return "", fmt.Errorf("failed to write plan: %w", err)
		}
		c.logger.Debug("plan_exists", zap.String("plan", planRef.Name))
	}

	doc.Header.Set(models.FieldClassification, string(cls.Category))
	if err := c.store.Write(ctx, ref, doc); err != nil {
		return "", fmt.Errorf("failed to annotate %s: %w", ref, err)
	}

	dest, err := c.store.Move(ctx, ref, cls.Category.Destination())
	if err != nil {
		return "", err
	}

	logRef := models.NewRef(models.StageLogs, fmt.Sprintf("CLASSIFY_%s_%s.md", stamp(now), ref.Stem()))
	if err := c.store.Write(ctx, logRef, buildClassifyLog(ref, dest, cls, now)); err != nil {
		c.logger.Error("classify_log_failed", zap.String("log", logRef.Name), zap.Error(err))
	}

	entry := models.AuditLogEntry{
		Timestamp:  now,
		ActionType: "classify",
		Actor:      "classifier",
		Target:     ref.Name,
		Parameters: map[string]any{
			"classification": string(cls.Category),
			"destination":    dest.String(),
			"fallback":       cls.Fallback,
		},
		ApprovalStatus: models.ApprovalAuto,
		Result:         models.ResultSuccess,
	}
	if err := c.ledger.Log(ctx, entry); err != nil {
		c.logger.Error("classify_audit_failed", zap.String("document", logpkg.SanitizeName(ref.Name)), zap.Error(err))
	}

	c.logger.Info("document_classified",
		zap.String("document", logpkg.SanitizeName(ref.Name)),
		zap.String("classification", string(cls.Category)),
		zap.String("destination", dest.String()),
		zap.Bool("fallback", cls.Fallback),
	)
	return cls.Category, nil
}

func buildPlan(ref models.Ref, cls models.Classification, now time.Time) *models.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n\n", ref.Stem())
	fmt.Fprintf(&b, "## Classification\n%s\n\n", cls.Category)
	fmt.Fprintf(&b, "## Summary\n%s\n\n", orNone(cls.Description))
	fmt.Fprintf(&b, "## Recommended Action\n%s\n", orNone(cls.RecommendedAction))
	if cls.Category == models.CategoryActionable {
		b.WriteString("\n## Next Steps\n- [ ] Review the item in Pending_Approval\n- [ ] Move it to Approved to execute\n")
	}

	doc := models.NewDocument(models.DocTypePlan, b.String())
	doc.Header.Set(models.FieldOriginalFile, ref.Name)
	doc.Header.Set(models.FieldClassification, string(cls.Category))
	doc.Header.Set(models.FieldCreated, now.Format(time.RFC3339))
	return doc
}

func buildClassifyLog(src, dest models.Ref, cls models.Classification, now time.Time) *models.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "# Classification: %s\n\n", src.Name)
	fmt.Fprintf(&b, "- **Classification:** %s\n", cls.Category)
	fmt.Fprintf(&b, "- **Destination:** %s\n", dest)
	fmt.Fprintf(&b, "- **Description:** %s\n", orNone(cls.Description))
	fmt.Fprintf(&b, "- **Recommended action:** %s\n", orNone(cls.RecommendedAction))
	if cls.Fallback {
		b.WriteString("- **Fallback:** yes\n")
	}

	doc := models.NewDocument("classify_log", b.String())
	doc.Header.Set(models.FieldOriginalFile, src.Name)
	doc.Header.Set(models.FieldClassification, string(cls.Category))
	doc.Header.Set(models.FieldCreated, now.Format(time.RFC3339))
	return doc
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

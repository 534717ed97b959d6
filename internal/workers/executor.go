package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/ledger"
	logpkg "github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/providers"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Dispatcher executes a decision through the provider bound to its kind
type Dispatcher interface {
	Execute(ctx context.Context, d models.Decision) (models.Outcome, error)
}

var _ Dispatcher = (*providers.Registry)(nil)

const resultBlockMarker = "\n---\n**Executed:** "

// Execution is the outcome of one approved item
type Execution struct {
	Source  models.Ref
	Done    models.Ref
	Action  models.ActionKind
	Status  string
	Summary string
}

// Executor performs approved items and moves every one of them to Done
type Executor struct {
	store    store.Store
	reasoner ai.Reasoner
	dispatch Dispatcher
	ledger   ledger.Recorder
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewExecutor creates an executor
func NewExecutor(s store.Store, reasoner ai.Reasoner, dispatch Dispatcher, rec ledger.Recorder, logger *zap.Logger, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultReasonerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:    s,
		reasoner: reasoner,
		dispatch: dispatch,
		ledger:   rec,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// SetClock overrides the clock
func (e *Executor) SetClock(clock func() time.Time) {
	e.now = clock
}

// RunPass executes every Approved document in name order
func (e *Executor) RunPass(ctx context.Context) ([]Execution, error) {
	ctx, span := tracer.Start(ctx, "executor.pass")
	defer span.End()

	refs, err := e.store.List(ctx, models.StageApproved)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list %s: %w", models.StageApproved, err)
	}

	var results []Execution
	for _, ref := range refs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		var res Execution
		err := guard(func() error {
			var itemErr error
			res, itemErr = e.executeItem(ctx, ref)
			return itemErr
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.logger.Debug("execute_item_vanished", zap.String("document", logpkg.SanitizeName(ref.Name)))
				continue
			}
			e.logger.Error("execute_item_failed", zap.String("document", logpkg.SanitizeName(ref.Name)), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	span.SetAttributes(attribute.Int("executor.executed", len(results)))
	return results, nil
}

// Decide asks the Reasoner what to do with an approved item
func (e *Executor) Decide(ctx context.Context, name string, doc *models.Document) (models.Decision, error) {
	if ai.ExtractRequestID(ctx) == "" {
		ctx = itemContext(ctx, name)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.reasoner.Ask(callCtx, ai.BuildDecisionPrompt(name, string(doc.Render())))
	if err != nil {
		logReasonerError(ctx, e.logger, err)
		return models.Decision{}, fmt.Errorf("decision request failed: %w", err)
	}
	return ai.ParseDecision(raw)
}

func (e *Executor) executeItem(ctx context.Context, ref models.Ref) (Execution, error) {
	ctx, span := tracer.Start(itemContext(ctx, ref.Name), "executor.item")
	defer span.End()
	span.SetAttributes(attribute.String("document", ref.Name), attribute.String("request_id", ai.ExtractRequestID(ctx)))

	doc, err := e.store.Read(ctx, ref)
	if err != nil {
		return Execution{}, err
	}

	res := Execution{Source: ref}
	if status, ok := executedStatus(doc.Body); ok {
		// a previous pass executed the item but could not move it
		res.Status = status
		res.Summary = "already executed"
		return e.finish(ctx, ref, res)
	}

	var (
		decision models.Decision
		outcome  models.Outcome
	)
	err = guard(func() error {
		var callErr error
		decision, callErr = e.Decide(ctx, ref.Name, doc)
		if callErr != nil {
			return callErr
		}
		res.Action = decision.Action
		outcome, callErr = e.dispatch.Execute(ctx, decision)
		return callErr
	})
	switch {
	case err == nil:
		res.Status = models.ResultSuccess
		res.Summary = outcome.Summary
	case errors.Is(err, providers.ErrSkipped):
		res.Status = models.ResultSkipped
		res.Summary = outcome.Summary
	default:
		res.Status = models.ResultFailed
		res.Summary = logpkg.SanitizeError(err)
	}
	span.SetAttributes(attribute.String("action", string(res.Action)), attribute.String("status", res.Status))

	now := e.now()
	doc.Body = appendResultBlock(doc.Body, res, now)
	if err := e.store.Write(ctx, ref, doc); err != nil {
		e.logger.Error("execute_result_write_failed", zap.String("document", logpkg.SanitizeName(ref.Name)), zap.Error(err))
	}

	logRef := models.NewRef(models.StageLogs, fmt.Sprintf("EXEC_%s_%s.md", stamp(now), ref.Stem()))
	if err := e.store.Write(ctx, logRef, buildExecLog(ref, decision, res, now)); err != nil {
		e.logger.Error("execute_log_failed", zap.String("log", logRef.Name), zap.Error(err))
	}

	if err := e.ledger.Log(ctx, auditEntry(ref, decision, outcome, res, now)); err != nil {
		e.logger.Error("execute_audit_failed", zap.String("document", logpkg.SanitizeName(ref.Name)), zap.Error(err))
	}

	return e.finish(ctx, ref, res)
}

// finish moves the item to Done; every approved item leaves Approved,
// whatever the outcome
func (e *Executor) finish(ctx context.Context, ref models.Ref, res Execution) (Execution, error) {
	dest, err := e.store.Move(ctx, ref, models.StageDone)
	if err != nil {
		return res, err
	}
	res.Done = dest

	e.logger.Info("approved_item_executed",
		zap.String("document", logpkg.SanitizeName(ref.Name)),
		zap.String("request_id", ai.ExtractRequestID(ctx)),
		zap.String("action", string(res.Action)),
		zap.String("status", res.Status),
		zap.String("summary", logpkg.SanitizeString(res.Summary, logpkg.MaxErrorMessageLength)),
	)
	return res, nil
}

// executedStatus reports the status recorded by an earlier result block
func executedStatus(body string) (string, bool) {
	i := strings.LastIndex(body, resultBlockMarker)
	if i < 0 {
		return "", false
	}
	block := body[i+len(resultBlockMarker):]
	for _, line := range strings.Split(block, "\n") {
		if status, ok := strings.CutPrefix(line, "**Status:** "); ok {
			return strings.TrimSpace(status), true
		}
	}
	return models.ResultFailed, true
}

func appendResultBlock(body string, res Execution, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	b.WriteString(resultBlockMarker)
	fmt.Fprintf(&b, "%s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Status:** %s\n", res.Status)
	if res.Action != "" {
		fmt.Fprintf(&b, "**Action:** %s\n", res.Action)
	}
	fmt.Fprintf(&b, "**Result:** %s\n", orNone(res.Summary))
	return b.String()
}

func buildExecLog(src models.Ref, d models.Decision, res Execution, now time.Time) *models.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "# Execution: %s\n\n", src.Name)
	fmt.Fprintf(&b, "- **Status:** %s\n", res.Status)
	fmt.Fprintf(&b, "- **Action:** %s\n", orNone(string(res.Action)))
	fmt.Fprintf(&b, "- **Result:** %s\n", orNone(res.Summary))
	if res.Action != "" {
		if data, err := json.MarshalIndent(d, "", "  "); err == nil {
			b.WriteString("\n## Decision\n\n```json\n")
			b.Write(data)
			b.WriteString("\n```\n")
		}
	}

	doc := models.NewDocument("execution_log", b.String())
	doc.Header.Set(models.FieldOriginalFile, src.Name)
	doc.Header.Set("action", string(res.Action))
	doc.Header.Set("status", res.Status)
	doc.Header.Set(models.FieldCreated, now.Format(time.RFC3339))
	return doc
}

func auditEntry(src models.Ref, d models.Decision, out models.Outcome, res Execution, now time.Time) models.AuditLogEntry {
	params := decisionParams(d)
	for k, v := range out.Parameters {
		params[k] = v
	}
	params["document"] = src.Name
	if res.Status == models.ResultFailed {
		params["error"] = res.Summary
	} else if res.Summary != "" {
		params["summary"] = res.Summary
	}

	actionType := string(res.Action)
	if actionType == "" {
		actionType = "execute"
	}
	target := out.Target
	if target == "" {
		target = d.Target()
	}
	if target == "" {
		target = src.Name
	}
	return models.AuditLogEntry{
		Timestamp:      now,
		ActionType:     actionType,
		Actor:          "executor",
		Target:         target,
		Parameters:     params,
		ApprovalStatus: models.ApprovalApproved,
		Result:         res.Status,
	}
}

// decisionParams flattens the decision's set fields, minus the message body
func decisionParams(d models.Decision) map[string]any {
	params := map[string]any{}
	data, err := json.Marshal(d)
	if err != nil {
		return params
	}
	_ = json.Unmarshal(data, &params)
	delete(params, "action")
	delete(params, "body")
	return params
}

package workers

import (
	"context"
	"fmt"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/seen"
	"github.com/benvon/vaultflow/internal/store"
	"go.uber.org/zap"
)

// DraftWatcher notifies once about each document waiting for approval
type DraftWatcher struct {
	store    store.Store
	seen     seen.Set
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewDraftWatcher creates a draft watcher
func NewDraftWatcher(s store.Store, set seen.Set, n notify.Notifier, logger *zap.Logger) *DraftWatcher {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftWatcher{store: s, seen: set, notifier: n, logger: logger}
}

// RunPass notifies about every unseen document in Pending_Approval and its
// sub-stages and returns how many were new
func (w *DraftWatcher) RunPass(ctx context.Context) (int, error) {
	stages := []models.Stage{models.StagePendingApproval}
	for _, sub := range models.DraftSubStages {
		stages = append(stages, models.StagePendingApproval.Sub(sub))
	}

	fresh := 0
	for _, stage := range stages {
		refs, err := w.store.List(ctx, stage)
		if err != nil {
			return fresh, fmt.Errorf("failed to list %s: %w", stage, err)
		}
		for _, ref := range refs {
			added, err := w.seen.Add(ctx, ref.String())
			if err != nil {
				w.logger.Warn("draft_seen_failed", zap.String("draft", ref.String()), zap.Error(err))
				continue
			}
			if !added {
				continue
			}
			fresh++
			w.notifier.Notify(ctx, notify.TitleDraft, fmt.Sprintf("%s is waiting for approval", ref))
		}
	}
	if fresh > 0 {
		w.logger.Info("drafts_announced", zap.Int("count", fresh))
	}
	return fresh, nil
}

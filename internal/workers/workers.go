// Package workers holds the passes the daemons run: classification, drafting,
// approval execution, draft notifications and the daily post.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/vaultflow/internal/dashboard"
	logpkg "github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	// DefaultReasonerTimeout bounds one classification or decision call
	DefaultReasonerTimeout = 120 * time.Second
	// DefaultDraftTimeout bounds one draft batch call
	DefaultDraftTimeout = 300 * time.Second
	// DefaultDraftBatchSize caps the items offered in one draft batch
	DefaultDraftBatchSize = 10

	// stampLayout is used in log artifact names
	stampLayout = "20060102_150405"
)

var tracer = otel.Tracer("vaultflow/workers")

// ErrPanicked wraps a panic raised by a collaborator while handling one item
var ErrPanicked = errors.New("panicked")

// DashboardUpdater recomputes the dashboard after a pass
type DashboardUpdater interface {
	Update(ctx context.Context, tally models.Tally) (*dashboard.Snapshot, error)
}

var _ DashboardUpdater = (*dashboard.Aggregator)(nil)

func stamp(t time.Time) string {
	return t.Format(stampLayout)
}

// guard runs fn and turns a panic into an ErrPanicked error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn()
}

// itemContext tags ctx with the document name and a fresh request ID so the
// Reasoner logs for one item correlate with the worker logs
func itemContext(ctx context.Context, name string) context.Context {
	return ai.WithRequestID(ai.WithDocument(ctx, name), uuid.NewString())
}

// logReasonerError reports quota exhaustion and rate limiting apart from
// ordinary Reasoner failures
func logReasonerError(ctx context.Context, logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.String("document", logpkg.SanitizeName(ai.ExtractDocument(ctx))),
		zap.String("request_id", ai.ExtractRequestID(ctx)),
		zap.Error(err),
	}
	switch {
	case ai.IsQuotaError(err):
		logger.Error("reasoner_quota_exceeded", fields...)
	case ai.IsRateLimitError(err):
		logger.Warn("reasoner_rate_limited", fields...)
	}
}

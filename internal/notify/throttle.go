package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// DefaultRate caps notifications per title
const DefaultRate = "30-H"

// NewLimiterStore returns a shared Redis store when a client is given, so
// every daemon draws from one budget, and an in-process store otherwise
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memorystore.NewStore(), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "vaultflow_notify"})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// Throttled drops notifications once a title exceeds its rate
type Throttled struct {
	next    Notifier
	limiter *limiter.Limiter
	logger  *zap.Logger
}

// NewThrottled wraps next with a per-title rate such as "30-H"
func NewThrottled(next Notifier, rate string, store limiter.Store, logger *zap.Logger) (*Throttled, error) {
	if rate == "" {
		rate = DefaultRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid notification rate %q: %w", rate, err)
	}
	if store == nil {
		store = memorystore.NewStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttled{next: next, limiter: limiter.New(store, parsed), logger: logger}, nil
}

// Notify forwards unless the title's budget is spent. A limiter failure
// forwards the notification rather than losing it.
func (t *Throttled) Notify(ctx context.Context, title, body string) {
	lctx, err := t.limiter.Get(ctx, title)
	if err != nil {
		t.logger.Warn("notification_limiter_failed", zap.Error(err))
		t.next.Notify(ctx, title, body)
		return
	}
	if lctx.Reached {
		t.logger.Debug("notification_throttled",
			zap.String("title", title),
			zap.Int64("limit", lctx.Limit),
		)
		return
	}
	t.next.Notify(ctx, title, body)
}

var _ Notifier = (*Throttled)(nil)

package notify

import (
	"context"
	"time"

	"github.com/benvon/vaultflow/internal/queue"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of the event bus a notifier needs
type Publisher interface {
	Publish(ctx context.Context, event *queue.Event) error
}

// AMQPNotifier publishes notifications to the event bus
type AMQPNotifier struct {
	publisher Publisher
	source    string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAMQPNotifier creates a bus notifier. source names the publishing daemon;
// ttl bounds how long an unread notification stays relevant (0 = forever).
func NewAMQPNotifier(publisher Publisher, source string, ttl time.Duration, logger *zap.Logger) *AMQPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPNotifier{publisher: publisher, source: source, ttl: ttl, logger: logger}
}

// Notify publishes an event
func (n *AMQPNotifier) Notify(ctx context.Context, title, body string) {
	event := queue.NewEvent(KindFor(title), title, body)
	event.Source = n.source
	if n.ttl > 0 {
		notAfter := event.CreatedAt.Add(n.ttl)
		event.NotAfter = &notAfter
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Warn("notification_publish_failed",
			zap.String("title", title),
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

var _ Notifier = (*AMQPNotifier)(nil)

// Package notify delivers operator notifications. Delivery is fire-and-forget:
// a Notifier never returns an error and never lets a panic reach its caller.
package notify

import (
	"context"

	"github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/queue"
	"go.uber.org/zap"
)

// Notification titles used across the daemons
const (
	TitleRestart    = "Watchdog Alert"
	TitleEscalation = "Watchdog Escalation"
	TitleHealth     = "Health Alert"
	TitleDraft      = "New Draft"
	TitlePost       = "Post Drafted"
)

// Notifier sends a title and body to the operator
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// KindFor maps a notification title onto an event bus kind
func KindFor(title string) queue.EventKind {
	switch title {
	case TitleRestart:
		return queue.EventProcessRestarted
	case TitleEscalation:
		return queue.EventProcessEscalated
	case TitleHealth:
		return queue.EventHealthAlert
	case TitleDraft:
		return queue.EventDraftReady
	default:
		return queue.EventNotification
	}
}

// Log writes notifications to the structured log
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log notifier
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Notify logs the notification
func (l *Log) Notify(ctx context.Context, title, body string) {
	l.logger.Info("notification",
		zap.String("title", title),
		zap.String("body", logger.SanitizeString(body, logger.MaxGeneralStringLength)),
	)
}

// Multi fans a notification out to every notifier in order
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are ignored.
func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify delivers to each notifier, isolating panics per delivery
func (m *Multi) Notify(ctx context.Context, title, body string) {
	for _, n := range m.notifiers {
		m.deliver(ctx, n, title, body)
	}
}

func (m *Multi) deliver(ctx context.Context, n Notifier, title, body string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("notification_panic",
				zap.String("title", title),
				zap.Any("panic", r),
			)
		}
	}()
	n.Notify(ctx, title, body)
}

// Nop discards notifications
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, string, string) {}

var (
	_ Notifier = (*Log)(nil)
	_ Notifier = (*Multi)(nil)
	_ Notifier = Nop{}
)

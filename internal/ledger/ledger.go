// Package ledger is the append-only audit trail. Entries for one calendar day
// live in Logs/YYYY-MM-DD.json as a single indented JSON array.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/store"
	"go.uber.org/zap"
)

// Recorder is what the workers need from the ledger
type Recorder interface {
	Log(ctx context.Context, entry models.AuditLogEntry) error
}

// Mirror receives a copy of every entry. Mirror failures never fail Log.
type Mirror interface {
	Insert(ctx context.Context, entry models.AuditLogEntry) error
}

// Logger appends entries to the daily ledger file
type Logger struct {
	store  store.Store
	mirror Mirror
	logger *zap.Logger
	now    func() time.Time

	// whole-file rewrite is read-modify-write; serialize in-process writers
	mu sync.Mutex
}

// Option customizes a Logger
type Option func(*Logger)

// WithMirror copies entries to a secondary sink
func WithMirror(m Mirror) Option {
	return func(l *Logger) {
		l.mirror = m
	}
}

// WithClock overrides the clock used for missing timestamps
func WithClock(clock func() time.Time) Option {
	return func(l *Logger) {
		l.now = clock
	}
}

// New creates a ledger over the vault store
func New(s store.Store, logger *zap.Logger, opts ...Option) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{store: s, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DayRef returns the ledger file for the day containing t
func DayRef(t time.Time) models.Ref {
	return models.NewRef(models.StageLogs, t.Format(time.DateOnly)+".json")
}

// Log appends one entry to its day's file
func (l *Logger) Log(ctx context.Context, entry models.AuditLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	if entry.Parameters == nil {
		entry.Parameters = map[string]any{}
	}

	l.mu.Lock()
	err := l.append(ctx, entry)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	l.logger.Info("audit_entry_logged",
		zap.String("action_type", entry.ActionType),
		zap.String("actor", entry.Actor),
		zap.String("target", entry.Target),
		zap.String("result", entry.Result),
	)

	if l.mirror != nil {
		if err := l.mirror.Insert(ctx, entry); err != nil {
			l.logger.Warn("audit_mirror_failed",
				zap.String("action_type", entry.ActionType),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (l *Logger) append(ctx context.Context, entry models.AuditLogEntry) error {
	ref := DayRef(entry.Timestamp)
	entries, err := l.read(ctx, ref)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger %s: %w", ref, err)
	}
	if err := l.store.WriteFile(ctx, ref, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", ref, err)
	}
	return nil
}

// read loads a day file. A corrupt file is treated as empty so logging can
// continue; the loss is reported.
func (l *Logger) read(ctx context.Context, ref models.Ref) ([]models.AuditLogEntry, error) {
	data, err := l.store.ReadFile(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger %s: %w", ref, err)
	}
	var entries []models.AuditLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Error("audit_ledger_corrupt",
			zap.String("file", ref.String()),
			zap.Error(err),
		)
		return nil, nil
	}
	return entries, nil
}

// Entries returns the entries recorded on the given day
func (l *Logger) Entries(ctx context.Context, day time.Time) ([]models.AuditLogEntry, error) {
	return l.read(ctx, DayRef(day))
}

var _ Recorder = (*Logger)(nil)

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

// AuditRepositoryInterface defines the interface for audit mirror operations
type AuditRepositoryInterface interface {
	Insert(ctx context.Context, entry models.AuditLogEntry) error
	ListByDay(ctx context.Context, day time.Time) ([]models.AuditLogEntry, error)
}

// AuditRepository mirrors ledger entries into the audit_log table
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates the repository and ensures its schema
func NewAuditRepository(ctx context.Context, db *DB) (*AuditRepository, error) {
	r := &AuditRepository{db: db}
	if err := r.initSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AuditRepository) initSchema(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.db.Dialect() == DialectPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	query := `
		CREATE TABLE IF NOT EXISTS audit_log (
			` + idColumn + `,
			day TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			action_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			target TEXT NOT NULL,
			parameters TEXT NOT NULL,
			approval_status TEXT NOT NULL,
			result TEXT NOT NULL
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS audit_log_day_idx ON audit_log (day)`); err != nil {
		return fmt.Errorf("failed to create audit_log index: %w", err)
	}
	return nil
}

// Insert stores one entry
func (r *AuditRepository) Insert(ctx context.Context, entry models.AuditLogEntry) error {
	params, err := json.Marshal(entry.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode audit parameters: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO audit_log (day, timestamp, action_type, actor, target, parameters, approval_status, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		entry.Timestamp.Format(time.DateOnly),
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.ActionType,
		entry.Actor,
		entry.Target,
		string(params),
		string(entry.ApprovalStatus),
		entry.Result,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByDay returns the entries recorded on day in insertion order
func (r *AuditRepository) ListByDay(ctx context.Context, day time.Time) ([]models.AuditLogEntry, error) {
	query := r.db.Rebind(`
		SELECT timestamp, action_type, actor, target, parameters, approval_status, result
		FROM audit_log
		WHERE day = ?
		ORDER BY id
	`)
	rows, err := r.db.QueryContext(ctx, query, day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var (
			entry  models.AuditLogEntry
			ts     string
			params string
			status string
		)
		if err := rows.Scan(&ts, &entry.ActionType, &entry.Actor, &entry.Target, &params, &status, &entry.Result); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &entry.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode audit parameters: %w", err)
		}
		entry.ApprovalStatus = models.ApprovalStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)

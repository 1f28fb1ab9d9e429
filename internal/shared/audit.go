package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID   string
	Action    string
	Entity    string
	EntityID  string
	OldValues map[string]any
	NewValues map[string]any
	Status    string
	At        time.Time
}

// Audit statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditLogger writes records into audit_logs. Recording is best-effort:
// callers log failures and continue, they never abort the primary workflow.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.Status == "" {
		log.Status = AuditStatusSuccess
	}
	oldJSON, err := json.Marshal(log.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewValues)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, old_values, new_values, status, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		nullString(log.ActorID), log.Action, log.Entity, log.EntityID, oldJSON, newJSON, log.Status, nullTimeValue(log.At))
	return err
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTimeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan sweeps the catalog for products at or below their
	// reorder threshold.
	TaskLowStockScan = "inventory:low_stock_scan"

	// TaskIdempotencyCleanup prunes idempotency keys past their retention
	// window.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// LowStockScanPayload tunes a low stock sweep.
type LowStockScanPayload struct {
	// Limit caps how many flagged products get logged individually.
	Limit int `json:"limit"`
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// IdempotencyCleanupPayload tunes the retention sweep.
type IdempotencyCleanupPayload struct {
	// RetentionHours overrides the configured retention when positive.
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

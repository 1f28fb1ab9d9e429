package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-ims/meridian-ims/internal/jobs"
)

// LowStockScanJob sweeps the catalog for products sitting at or below their
// reorder threshold. The scan is read-only: it surfaces candidates through
// logs and metrics so purchasing can raise replenishment orders.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type lowStockRow struct {
	ID        string
	SKU       string
	Name      string
	Quantity  int
	Threshold int
	Status    string
}

// Handle executes one sweep.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan", slog.Int("limit", payload.Limit))

	rows, err := j.scan(ctx)
	if err != nil {
		resultErr = err
		logger.Error("low stock scan failed", slog.Any("error", err))
		return resultErr
	}

	byStatus := map[string]int{}
	for i, row := range rows {
		byStatus[row.Status]++
		if i < payload.Limit {
			logger.Warn("product below reorder threshold",
				slog.String("product_id", row.ID),
				slog.String("sku", row.SKU),
				slog.String("name", row.Name),
				slog.Int("quantity", row.Quantity),
				slog.Int("threshold", row.Threshold),
				slog.String("status", row.Status),
			)
		}
	}
	for status, count := range byStatus {
		j.metrics().SetLowStock(status, count)
	}

	logger.Info("completed low stock scan",
		slog.Int("flagged", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LowStockScanJob) scan(ctx context.Context) ([]lowStockRow, error) {
	if j.Pool == nil {
		return nil, errors.New("low stock scan: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
SELECT id, sku, name, quantity, COALESCE(reorder_point, min_stock, 0) AS threshold, status
FROM products
WHERE quantity <= COALESCE(reorder_point, min_stock, 0)
ORDER BY quantity ASC, sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lowStockRow
	for rows.Next() {
		var row lowStockRow
		if err := rows.Scan(&row.ID, &row.SKU, &row.Name, &row.Quantity, &row.Threshold, &row.Status); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j == nil {
		return nil
	}
	return j.Metrics
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

func TestLowStockScanSkipsMalformedPayload(t *testing.T) {
	job := NewLowStockScanJob(nil, nil, nil)
	task := asynq.NewTask(TaskLowStockScan, []byte("{not json"))

	err := job.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestLowStockScanRequiresPool(t *testing.T) {
	job := NewLowStockScanJob(nil, nil, nil)
	task, err := NewLowStockScanTask(10)
	if err != nil {
		t.Fatal(err)
	}

	err = job.Handle(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable configuration error, got %v", err)
	}
}

func TestIdempotencyCleanupRequiresStore(t *testing.T) {
	var job *IdempotencyCleanupJob
	task, err := NewIdempotencyCleanupTask(24)
	if err != nil {
		t.Fatal(err)
	}

	if err := job.Handle(context.Background(), task); err == nil {
		t.Fatal("expected error from unconfigured handler")
	}
}

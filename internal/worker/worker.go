// Package worker implements the background audit execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/metrics"
)

// Runner executes the pipeline for one audit. *orchestrator.Orchestrator
// implements it.
type Runner interface {
	Run(ctx context.Context, item audit.QueueItem) error
}

// Dequeuer is the consuming half of audit.Queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (audit.QueueItem, error)
}

// Worker consumes queue items and runs one audit at a time.
type Worker struct {
	id     int
	queue  Dequeuer
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue Dequeuer, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		logger: logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, audit.ErrQueueClosed) {
				w.logger.Info("queue closed; worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued audit", zap.String("audit_id", item.AuditID))
		w.process(ctx, item)
	}
}

// process runs one audit. A panic inside the pipeline is contained so the
// worker keeps serving the queue.
func (w *Worker) process(ctx context.Context, item audit.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("audit panicked",
				zap.String("audit_id", item.AuditID),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()

	if err := w.runner.Run(ctx, item); err != nil {
		w.logger.Warn("audit finished with error", zap.String("audit_id", item.AuditID), zap.Error(err))
		return
	}
	w.logger.Debug("audit finished", zap.String("audit_id", item.AuditID))
}

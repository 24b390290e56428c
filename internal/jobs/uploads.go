package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"multinet/internal/config"
)

// UploadQueue is the claimable side of the uploads table.
type UploadQueue interface {
	Claim(ctx context.Context, limit int) ([]uuid.UUID, error)
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
}

type UploadProcessor interface {
	Process(ctx context.Context, id uuid.UUID) error
}

// NewUploadWorker claims pending uploads each tick and processes them with
// at most cfg.Concurrency in flight. Uploads whose heartbeat is older than
// cfg.StaleThreshold are re-queued on start and then every half threshold.
func NewUploadWorker(cfg config.WorkerConfig, queue UploadQueue, proc UploadProcessor) *Worker {
	concurrency := max(cfg.Concurrency, 1)
	batch := max(cfg.BatchSize, concurrency)
	recoverEvery := max(cfg.StaleThreshold/2, cfg.PollInterval)

	var w *Worker
	var lastRecovery time.Time
	recoverStale := func(ctx context.Context) error {
		lastRecovery = time.Now()
		n, err := queue.RecoverStale(ctx, cfg.StaleThreshold)
		if err != nil {
			return fmt.Errorf("recover stale uploads: %w", err)
		}
		if n > 0 {
			w.log.Info("Recovered stale uploads", zap.Int64("count", n))
		}
		return nil
	}

	w = NewWorker(WorkerConfig{Name: "uploads", PollInterval: cfg.PollInterval}, func(ctx context.Context) error {
		if time.Since(lastRecovery) >= recoverEvery {
			if err := recoverStale(ctx); err != nil {
				w.log.Warn("Stale upload recovery failed", zap.Error(err))
			}
		}

		ids, err := queue.Claim(ctx, batch)
		if err != nil {
			return fmt.Errorf("claim uploads: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		g := errgroup.Group{}
		g.SetLimit(concurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				if err := proc.Process(ctx, id); err != nil {
					w.IncrementFailure()
					w.log.Warn("Upload processing error", zap.String("upload_id", id.String()), zap.Error(err))
					return nil
				}
				w.IncrementSuccess()
				return nil
			})
		}
		return g.Wait()
	})

	return w.OnStart(recoverStale)
}

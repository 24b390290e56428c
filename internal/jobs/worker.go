package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"multinet/pkg/logger"
)

// WorkerConfig contains configuration for a background worker
type WorkerConfig struct {
	// Name is a descriptive name for the worker (for logging)
	Name string
	// PollInterval is how often process runs (default: 5s)
	PollInterval time.Duration
}

// Worker calls process on every tick until stopped. Stop lets the current
// tick finish; if the stop context expires first, the tick's context is
// cancelled.
type Worker struct {
	config  WorkerConfig
	log     *zap.Logger
	process func(ctx context.Context) error
	onStart func(ctx context.Context) error

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancel    context.CancelFunc

	metricsMu      sync.RWMutex
	processedCount int64
	successCount   int64
	failureCount   int64
}

func NewWorker(config WorkerConfig, process func(ctx context.Context) error) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &Worker{
		config:    config,
		log:       logger.Get().Named("worker").With(zap.String("worker", config.Name)),
		process:   process,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// OnStart registers a hook run once before the first tick.
func (w *Worker) OnStart(hook func(ctx context.Context) error) *Worker {
	w.onStart = hook
	return w
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	stopCh, stoppedCh := w.stopCh, w.stoppedCh
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.log.Info("Worker starting", zap.Duration("poll_interval", w.config.PollInterval))

	if w.onStart != nil {
		if err := w.onStart(runCtx); err != nil {
			w.log.Warn("Worker start hook failed", zap.Error(err))
		}
	}

	go w.run(runCtx, stopCh, stoppedCh)
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	stopped, cancel := w.stoppedCh, w.cancel
	w.mu.Unlock()

	select {
	case <-stopped:
		w.log.Info("Worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("Worker stop timeout, cancelling in-flight work")
		cancel()
		<-stopped
	}
	cancel()
	return nil
}

func (w *Worker) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.tick(ctx, stopCh); err != nil {
				w.log.Warn("Worker tick failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context, stopCh <-chan struct{}) error {
	select {
	case <-stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return w.process(ctx)
}

func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WorkerMetrics contains worker metrics
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()
	return WorkerMetrics{
		Processed: w.processedCount,
		Succeeded: w.successCount,
		Failed:    w.failureCount,
	}
}

func (w *Worker) IncrementSuccess() {
	w.metricsMu.Lock()
	w.processedCount++
	w.successCount++
	w.metricsMu.Unlock()
}

func (w *Worker) IncrementFailure() {
	w.metricsMu.Lock()
	w.processedCount++
	w.failureCount++
	w.metricsMu.Unlock()
}

// Package worker applies projection events to read models off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Event abstracts what workers read off the queue.
type Event = model.Event

// ErrUnknownEvent is returned for events with an unrecognised kind.
var ErrUnknownEvent = errors.New("unknown event kind")

// Ranker is the leaderboard the workers keep current. version is the
// project's store version; rankers drop updates older than one applied.
type Ranker interface {
	Set(ctx context.Context, projectID string, mu float64, version uint64)
	Remove(ctx context.Context, projectID string, version uint64)
}

// Archiver durably stores flags. It is optional.
type Archiver interface {
	Append(ctx context.Context, f model.Flag) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until its queue is drained.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for projection events.
type InMemoryWorker struct {
	queue    Queue
	ranker   Ranker
	archiver Archiver
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
// archiver may be nil.
func NewInMemoryWorker(queue Queue, ranker Ranker, archiver Archiver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		ranker:   ranker,
		archiver: archiver,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent applies one event to the read models.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	switch event.Kind {
	case model.EventRatingChanged:
		w.ranker.Set(ctx, event.ProjectID, event.Mu, event.Version)
	case model.EventVisibilityChanged:
		if event.Active {
			w.ranker.Set(ctx, event.ProjectID, event.Mu, event.Version)
		} else {
			w.ranker.Remove(ctx, event.ProjectID, event.Version)
		}
	case model.EventFlagged:
		if event.Active {
			// Reactivated between the flag and the publish.
			w.ranker.Set(ctx, event.ProjectID, event.Mu, event.Version)
		} else {
			w.ranker.Remove(ctx, event.ProjectID, event.Version)
		}
		if w.archiver == nil || event.Flag == nil {
			return nil
		}
		if err := w.archiver.Append(ctx, *event.Flag); err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "archive_error")
			return fmt.Errorf("archive flag %s: %w", event.Flag.ID, err)
		}
	default:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "unknown_event")
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Kind)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 uses one worker per CPU.
// archiver and log may be nil.
func NewPool(workerCount int, queue Queue, ranker Ranker, archiver Archiver, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Nop()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  log.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, ranker, archiver,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}

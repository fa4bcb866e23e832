package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

// ItemProcessor runs the extract -> normalize -> match pipeline for one item
type ItemProcessor interface {
	ProcessItem(ctx context.Context, id string) ([]domain.Match, error)
}

// ProcessingQueueConfig holds configuration for the background queue
type ProcessingQueueConfig struct {
	Workers     int
	QueueSize   int
	ItemTimeout time.Duration
}

// ProcessingQueue processes newly created items in the background with a fixed
// number of workers
type ProcessingQueue struct {
	processor   ItemProcessor
	jobs        chan string
	workers     int
	itemTimeout time.Duration
	logger      logger.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewProcessingQueue creates a queue; call Start to begin processing
func NewProcessingQueue(processor ItemProcessor, config ProcessingQueueConfig, log logger.Logger) *ProcessingQueue {
	workers := config.Workers
	if workers <= 0 {
		workers = 2
	}
	size := config.QueueSize
	if size <= 0 {
		size = 100
	}
	timeout := config.ItemTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &ProcessingQueue{
		processor:   processor,
		jobs:        make(chan string, size),
		workers:     workers,
		itemTimeout: timeout,
		logger:      log.WithFields(map[string]interface{}{"component": "processing_queue"}),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (q *ProcessingQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx, i)
	}
}

// Enqueue schedules an item for processing without blocking
func (q *ProcessingQueue) Enqueue(itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("processing queue is stopped")
	}

	select {
	case q.jobs <- itemID:
		return nil
	default:
		return fmt.Errorf("%w: processing queue is full", domain.ErrRateLimited)
	}
}

// Stop stops accepting items and waits for queued items to drain
func (q *ProcessingQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *ProcessingQueue) run(ctx context.Context, worker int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			q.process(ctx, worker, id)
		}
	}
}

func (q *ProcessingQueue) process(ctx context.Context, worker int, id string) {
	ctx, cancel := context.WithTimeout(ctx, q.itemTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("item processing panicked", map[string]interface{}{
				"itemId": id,
				"panic":  fmt.Sprint(r),
			})
		}
	}()

	matches, err := q.processor.ProcessItem(ctx, id)
	if err != nil {
		q.logger.Error("item processing failed", map[string]interface{}{
			"worker": worker,
			"itemId": id,
			"error":  err,
		})
		return
	}

	q.logger.Info("item processed", map[string]interface{}{
		"worker":  worker,
		"itemId":  id,
		"matches": len(matches),
	})
}

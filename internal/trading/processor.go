package trading

import (
	"context"
	"errors"
	"sync"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

var ErrProcessorStopped = errors.New("trade processor stopped")

type outcome struct {
	result models.TradeResult
	err    error
}

// job represents a trade to be processed
type job struct {
	ctx      context.Context
	req      models.TradeRequest
	resultCh chan outcome // Channel to send result back
}

// TradeProcessor handles concurrent trade processing
type TradeProcessor struct {
	workers  int
	queue    chan job
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	executor *Executor

	logger logger.Logger
}

// NewTradeProcessor creates a new trade processor with worker pool
func NewTradeProcessor(executor *Executor, workers, queueSize int, logger logger.Logger) *TradeProcessor {
	return &TradeProcessor{
		workers:  workers,
		queue:    make(chan job, queueSize),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		executor: executor,
		logger:   logger,
	}
}

// Start starts the worker pool
func (tp *TradeProcessor) Start() {
	for i := 0; i < tp.workers; i++ {
		tp.wg.Add(1)
		go tp.worker(i)
	}
	tp.logger.Infof("started %d trade workers", tp.workers)
}

// Stop waits for in-flight trades. Queued trades that were not picked up fail with ErrProcessorStopped.
func (tp *TradeProcessor) Stop() {
	tp.stopOnce.Do(func() {
		close(tp.stopCh)
		tp.wg.Wait()
		close(tp.stopped)
		tp.logger.Infof("trade processor stopped")
	})
}

// worker processes trades from the queue
func (tp *TradeProcessor) worker(id int) {
	defer tp.wg.Done()

	for {
		select {
		case <-tp.stopCh:
			tp.logger.Debugf("worker %d stopping", id)
			return

		case j := <-tp.queue:
			tp.logger.Debugf("worker %d processing %s %s for user %d", id, j.req.Type, j.req.Symbol, j.req.UserID)

			result, err := tp.executor.Execute(j.ctx, j.req)
			j.resultCh <- outcome{result: result, err: err}
		}
	}
}

// Submit queues a trade and waits for its result.
func (tp *TradeProcessor) Submit(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	resultCh := make(chan outcome, 1)

	select {
	case tp.queue <- job{ctx: ctx, req: req, resultCh: resultCh}:
	case <-tp.stopCh:
		return models.TradeResult{}, ErrProcessorStopped
	case <-ctx.Done():
		return models.TradeResult{}, ctx.Err()
	}

	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-tp.stopped:
		select {
		case out := <-resultCh:
			return out.result, out.err
		default:
			return models.TradeResult{}, ErrProcessorStopped
		}
	case <-ctx.Done():
		return models.TradeResult{}, ctx.Err()
	}
}

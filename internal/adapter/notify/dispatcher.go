package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

const publishTimeout = 5 * time.Second

// Dispatcher fans committed stock changes out to its sinks from a worker
// pool. Enqueueing never blocks the committer: when the queue is full the
// event is dropped with a log line. Sink errors are logged and swallowed.
type Dispatcher struct {
	queue  chan domain.StockChange
	sinks  []port.StockNotifier
	logger *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sinks []port.StockNotifier, queueSize, workerCount int, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		queue:  make(chan domain.StockChange, queueSize),
		sinks:  sinks,
		logger: logger,
	}
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) PublishStockChange(ctx context.Context, change domain.StockChange) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping stock change",
			zap.String("product_id", change.Product.ID))
		return nil
	}

	select {
	case d.queue <- change:
	default:
		d.logger.Warn("notification queue full, dropping stock change",
			zap.String("product_id", change.Product.ID))
	}
	return nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for change := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		for _, sink := range d.sinks {
			if err := sink.PublishStockChange(ctx, change); err != nil {
				d.logger.Warn("stock change publish failed",
					zap.Int("worker", id),
					zap.String("product_id", change.Product.ID),
					zap.Error(err))
			}
		}
		cancel()
	}
}

// Close stops accepting events and waits for in-flight publishes. Publishing
// after Close drops the event instead of panicking on the closed queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

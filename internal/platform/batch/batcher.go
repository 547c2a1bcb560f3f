// Package batch coalesces individually enqueued items into periodic drain calls.
package batch

import (
	"sync"
	"time"

	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/metrics"
)

const DefaultWindow = 10 * time.Millisecond

type Config struct {
	// Name labels the batch size metric.
	Name string
	// MaxItems flushes synchronously once the queue reaches this size. Zero disables it.
	MaxItems  int
	Scheduler Scheduler
	Logger    *logging.Logger
}

// Batcher collects items and hands them to drain in one call per window.
type Batcher[T any] struct {
	mu        sync.Mutex
	queue     []T
	scheduled bool
	stopped   bool

	drain    func([]T)
	sched    Scheduler
	maxItems int
	name     string
	logger   *logging.Logger
}

func New[T any](drain func([]T), cfg Config) *Batcher[T] {
	sched := cfg.Scheduler
	if sched == nil {
		sched = TimerScheduler{Delay: DefaultWindow}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	maxItems := cfg.MaxItems
	if maxItems < 0 {
		maxItems = 0
	}

	return &Batcher[T]{
		drain:    drain,
		sched:    sched,
		maxItems: maxItems,
		name:     name,
		logger:   logger,
	}
}

// Enqueue adds item to the next batch. It reports false once the batcher is stopped.
func (b *Batcher[T]) Enqueue(item T) bool {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, item)
	full := b.maxItems > 0 && len(b.queue) >= b.maxItems
	schedule := false
	if !full && !b.scheduled {
		b.scheduled = true
		schedule = true
	}
	b.mu.Unlock()

	if full {
		b.Flush()
	} else if schedule {
		b.sched.Schedule(func() { b.Flush() })
	}
	return true
}

// Flush drains whatever is queued right now. Items enqueued while drain runs are
// left for a later batch.
func (b *Batcher[T]) Flush() int {
	b.mu.Lock()
	items := b.queue
	b.queue = nil
	b.scheduled = false
	b.mu.Unlock()

	if len(items) == 0 {
		return 0
	}

	metrics.BatchSize.WithLabelValues(b.name).Observe(float64(len(items)))
	b.logger.Debug("batch drain", "batcher", b.name, "size", len(items))
	b.drain(items)
	return len(items)
}

func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stop drains the remaining queue and rejects further enqueues.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.Flush()
}

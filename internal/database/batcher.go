package database

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const closeFlushTimeout = 5 * time.Second

// FlushFunc writes one batch to the backing store
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Batcher collects items and flushes them when the batch is full or the
// interval elapses. Add never blocks; items are dropped when the queue is full.
type Batcher[T any] struct {
	size     int
	interval time.Duration
	flush    FlushFunc[T]
	logger   zerolog.Logger

	in    chan T
	batch []T

	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
	mu      sync.Mutex // guards started
}

func NewBatcher[T any](size int, interval time.Duration, flush FlushFunc[T], logger zerolog.Logger) *Batcher[T] {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher[T]{
		size:     size,
		interval: interval,
		flush:    flush,
		logger:   logger,
		in:       make(chan T, size*2),
		batch:    make([]T, 0, size),
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the write loop
func (b *Batcher[T]) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.writeLoop()
}

// Add queues an item and reports whether it was accepted
func (b *Batcher[T]) Add(item T) bool {
	select {
	case <-b.stop:
		return false
	default:
	}
	select {
	case b.in <- item:
		return true
	default:
		b.logger.Warn().Msg("batch queue full, dropping item")
		return false
	}
}

// Close flushes queued items and stops the write loop
func (b *Batcher[T]) Close() {
	b.once.Do(func() {
		close(b.stop)
		b.mu.Lock()
		started := b.started
		b.mu.Unlock()
		if started {
			<-b.done
		}
		b.cancel()
	})
}

func (b *Batcher[T]) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			b.drain()
			return

		case item := <-b.in:
			b.batch = append(b.batch, item)
			if len(b.batch) >= b.size {
				b.write(b.ctx)
			}

		case <-ticker.C:
			b.write(b.ctx)
		}
	}
}

// drain flushes everything still queued with a bounded deadline
func (b *Batcher[T]) drain() {
pending:
	for {
		select {
		case item := <-b.in:
			b.batch = append(b.batch, item)
		default:
			break pending
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	b.write(ctx)
}

func (b *Batcher[T]) write(ctx context.Context) {
	if len(b.batch) == 0 {
		return
	}
	if err := b.flush(ctx, b.batch); err != nil {
		b.logger.Error().Err(err).Int("items", len(b.batch)).Msg("flush failed, dropping batch")
	} else {
		b.logger.Debug().Int("items", len(b.batch)).Msg("flushed batch")
	}
	b.batch = make([]T, 0, b.size)
}

package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueEmpty is returned by Peek and TryDequeue when nothing is queued
	ErrQueueEmpty = errors.New("queue is empty")
)

// SizeFunc estimates the memory held by one item.
type SizeFunc[T any] func(T) int64

// Options bound a Queue. Zero values mean unbounded.
type Options[T any] struct {
	MaxSize     int
	MemoryLimit int64
	Size        SizeFunc[T]
}

type entry[T any] struct {
	item     T
	size     int64
	enqueued time.Time
}

// Queue is a thread-safe FIFO with optional size and memory bounds.
type Queue[T any] struct {
	items []entry[T]

	maxSize       int
	memoryLimit   int64
	currentMemory int64
	sizeOf        SizeFunc[T]

	mu     sync.Mutex
	closed bool
	stats  Stats
}

// Stats tracks queue performance metrics
type Stats struct {
	TotalEnqueued   int64
	TotalDequeued   int64
	TotalDropped    int64
	TotalCleared    int64
	CurrentSize     int
	PeakSize        int
	CurrentMemory   int64
	LastEnqueue     time.Time
	LastDequeue     time.Time
	AverageWaitTime time.Duration
}

// New creates a queue with the given bounds.
func New[T any](opts Options[T]) *Queue[T] {
	return &Queue[T]{
		maxSize:     opts.MaxSize,
		memoryLimit: opts.MemoryLimit,
		sizeOf:      opts.Size,
	}
}

// Enqueue appends item at the tail. It never blocks; a full queue drops the
// new item and reports ErrQueueFull.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	var size int64
	if q.sizeOf != nil {
		size = q.sizeOf(item)
	}
	if q.memoryLimit > 0 && q.currentMemory+size > q.memoryLimit {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	now := time.Now()
	q.items = append(q.items, entry[T]{item: item, size: size, enqueued: now})
	q.currentMemory += size

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = now
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	q.stats.CurrentSize = len(q.items)
	q.stats.CurrentMemory = q.currentMemory

	return nil
}

// TryDequeue removes and returns the head of the queue without waiting.
func (q *Queue[T]) TryDequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed {
		return zero, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return zero, ErrQueueEmpty
	}

	head := q.items[0]
	q.items[0] = entry[T]{}
	q.items = q.items[1:]

	q.currentMemory -= head.size
	if q.currentMemory < 0 {
		q.currentMemory = 0
	}

	now := time.Now()
	wait := now.Sub(head.enqueued)
	if q.stats.TotalDequeued == 0 {
		q.stats.AverageWaitTime = wait
	} else {
		// Exponential moving average
		q.stats.AverageWaitTime = (q.stats.AverageWaitTime*9 + wait) / 10
	}
	q.stats.TotalDequeued++
	q.stats.LastDequeue = now
	q.stats.CurrentSize = len(q.items)
	q.stats.CurrentMemory = q.currentMemory

	return head.item, nil
}

// Peek returns the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed {
		return zero, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return zero, ErrQueueEmpty
	}
	return q.items[0].item, nil
}

// Size returns the current number of queued items.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Clear removes every queued item and returns them in queue order.
func (q *Queue[T]) Clear() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	dropped := make([]T, len(q.items))
	for i, e := range q.items {
		dropped[i] = e.item
	}

	q.stats.TotalCleared += int64(len(q.items))
	q.items = nil
	q.currentMemory = 0
	q.stats.CurrentSize = 0
	q.stats.CurrentMemory = 0

	return dropped
}

// Close rejects all further operations and drops queued items.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.closed = true
	q.items = nil
	q.currentMemory = 0
	q.stats.CurrentSize = 0
	q.stats.CurrentMemory = 0

	return nil
}

// GetStats returns a copy of the current statistics.
func (q *Queue[T]) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.stats
}

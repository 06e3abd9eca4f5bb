package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type clip struct {
	ID      string
	Payload []byte
}

func TestQueue_BasicOperations(t *testing.T) {
	q := New(Options[clip]{})
	defer q.Close()

	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}

	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}

	if err := q.Enqueue(clip{ID: "c1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	peeked, err := q.Peek()
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if peeked.ID != "c1" {
		t.Errorf("Peeked wrong item: %v", peeked)
	}

	got, err := q.TryDequeue()
	if err != nil {
		t.Fatalf("TryDequeue failed: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("Dequeued wrong item: %v", got)
	}

	if _, err := q.TryDequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty after draining, got %v", err)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New(Options[clip]{})
	defer q.Close()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(clip{ID: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		got, err := q.TryDequeue()
		if err != nil {
			t.Fatalf("TryDequeue %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("c%d", i); got.ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, got.ID)
		}
	}
}

func TestQueue_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options[clip]
		items    []clip
		accepted int
	}{
		{
			name:     "max size",
			opts:     Options[clip]{MaxSize: 2},
			items:    []clip{{ID: "a"}, {ID: "b"}, {ID: "c"}},
			accepted: 2,
		},
		{
			name: "memory limit",
			opts: Options[clip]{
				MemoryLimit: 10,
				Size:        func(c clip) int64 { return int64(len(c.Payload)) },
			},
			items:    []clip{{ID: "a", Payload: make([]byte, 6)}, {ID: "b", Payload: make([]byte, 6)}},
			accepted: 1,
		},
		{
			name:     "unbounded",
			opts:     Options[clip]{},
			items:    []clip{{ID: "a"}, {ID: "b"}, {ID: "c"}},
			accepted: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.opts)
			defer q.Close()

			accepted := 0
			for _, item := range tt.items {
				err := q.Enqueue(item)
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, ErrQueueFull):
				default:
					t.Fatalf("Unexpected error: %v", err)
				}
			}

			if accepted != tt.accepted {
				t.Errorf("Expected %d accepted, got %d", tt.accepted, accepted)
			}
			stats := q.GetStats()
			if dropped := int(stats.TotalDropped); dropped != len(tt.items)-tt.accepted {
				t.Errorf("Expected %d dropped, got %d", len(tt.items)-tt.accepted, dropped)
			}
		})
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New(Options[clip]{Size: func(c clip) int64 { return int64(len(c.Payload)) }})
	defer q.Close()

	for i := 0; i < 3; i++ {
		_ = q.Enqueue(clip{ID: fmt.Sprintf("c%d", i), Payload: []byte("abc")})
	}

	dropped := q.Clear()
	if len(dropped) != 3 {
		t.Fatalf("Expected 3 cleared items, got %d", len(dropped))
	}
	if dropped[0].ID != "c0" || dropped[2].ID != "c2" {
		t.Errorf("Cleared items out of order: %v", dropped)
	}
	if q.Size() != 0 {
		t.Errorf("Expected empty queue after Clear, got %d", q.Size())
	}

	stats := q.GetStats()
	if stats.CurrentMemory != 0 {
		t.Errorf("Expected memory reset, got %d", stats.CurrentMemory)
	}
	if stats.TotalCleared != 3 {
		t.Errorf("Expected TotalCleared 3, got %d", stats.TotalCleared)
	}

	if again := q.Clear(); again != nil {
		t.Errorf("Expected nil from clearing an empty queue, got %v", again)
	}
}

func TestQueue_Close(t *testing.T) {
	q := New(Options[clip]{})
	_ = q.Enqueue(clip{ID: "c1"})

	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := q.Close(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on second close, got %v", err)
	}
	if err := q.Enqueue(clip{ID: "c2"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on enqueue, got %v", err)
	}
	if _, err := q.TryDequeue(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on dequeue, got %v", err)
	}
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q := New(Options[clip]{})
	defer q.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Enqueue(clip{ID: fmt.Sprintf("w%d-%d", w, i)})
			}
		}(w)
	}
	wg.Wait()

	if q.Size() != 200 {
		t.Errorf("Expected 200 items, got %d", q.Size())
	}

	stats := q.GetStats()
	if stats.PeakSize != 200 {
		t.Errorf("Expected peak 200, got %d", stats.PeakSize)
	}
}

// Package loop runs functions serially on a dedicated goroutine.
//
// Every player owns one Loop. All of a player's mutable state is touched
// only from functions running on its loop, so none of it needs a lock.
// Background work (socket reads, dials, process waits) posts its result
// back with Post.
package loop

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Do once the loop has been closed.
var ErrClosed = errors.New("loop closed")

// Loop is a serial executor with an unbounded inbox.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop goroutine.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		<-l.wake
		for {
			l.mu.Lock()
			if l.closed {
				l.pending = nil
				l.mu.Unlock()
				return
			}
			if len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			batch := l.pending
			l.pending = nil
			l.mu.Unlock()

			for i, fn := range batch {
				if l.isClosed() {
					return
				}
				batch[i] = nil
				fn()
			}
		}
	}
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Post schedules fn and returns immediately. It never blocks, so it is safe
// to call from the loop itself. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	l.signal()
	return true
}

// Do runs fn on the loop and waits for it to return.
// Calling Do from the loop goroutine deadlocks.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have exited after running fn.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops the loop. Functions still pending are discarded; the function
// currently running, if any, completes first.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a one-shot timer whose callback runs on a loop.
type Timer struct {
	t       *time.Timer
	stopped bool // only read and written on the loop
}

// AfterFunc runs fn on the loop after d. Stopping the timer from the loop
// guarantees fn will not run, even if the underlying timer already fired.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.stopped {
				return
			}
			tm.stopped = true
			fn()
		})
	})
	return tm
}

// Stop cancels the timer. Must be called on the loop that created it.
// A nil timer is ignored.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.stopped = true
	t.t.Stop()
}

// Active reports whether the timer is still pending. Loop-only.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped
}

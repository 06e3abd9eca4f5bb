package connection

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 2 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 3 * time.Second},
		{attempt: 3, want: 4500 * time.Millisecond},
		{attempt: 10, want: 30 * time.Second},
		{attempt: 10000, want: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	configs := []Backoff{
		DefaultBackoff(),
		{Base: time.Second, Factor: 2, Max: time.Minute},
		{Base: 100 * time.Millisecond, Factor: 0.5, Max: time.Second},
		{Base: time.Minute, Factor: 2, Max: time.Second},
	}

	for _, b := range configs {
		prev := time.Duration(0)
		for n := 1; n <= 200; n++ {
			d := b.Delay(n)
			if d < prev {
				t.Errorf("%+v: Delay(%d) = %v decreased from %v", b, n, d, prev)
			}
			if d > b.Max {
				t.Errorf("%+v: Delay(%d) = %v exceeds cap", b, n, d)
			}
			prev = d
		}
	}
}

func TestStateMachine(t *testing.T) {
	sm := newStateMachine()

	steps := []struct {
		to State
		ok bool
	}{
		{StateConnected, false},
		{StateConnecting, true},
		{StateConnected, true},
		{StateError, true},
		{StateError, true},
		{StateDisconnected, true},
		{StateEnded, true},
		{StateConnecting, false},
		{StateEnded, false},
	}

	for i, s := range steps {
		if got := sm.transition(s.to, ""); got != s.ok {
			t.Errorf("Step %d to %s: expected %v, got %v", i, s.to, s.ok, got)
		}
	}
	if sm.current != StateEnded {
		t.Errorf("Expected ended, got %s", sm.current)
	}
}

package audio

import (
	"sync"
	"time"
)

// NullBackend "plays" clips silently for their decoded duration. It keeps
// the engine's pacing on hosts without an audio device.
type NullBackend struct{}

// NewNullBackend returns a silent backend.
func NewNullBackend() *NullBackend { return &NullBackend{} }

type nullHandle struct {
	duration time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (h *nullHandle) Duration() time.Duration { return h.duration }

// Name implements Backend.
func (*NullBackend) Name() string { return "null" }

// Decode reads the WAV header for the clip duration.
func (*NullBackend) Decode(payload []byte) (Handle, error) {
	duration, _, err := probeWAV(payload)
	if err != nil {
		return nil, err
	}
	return &nullHandle{duration: duration}, nil
}

// SetOutputDevice accepts any device.
func (*NullBackend) SetOutputDevice(Handle, string) error { return nil }

// Play completes after the clip duration.
func (*NullBackend) Play(h Handle, done func(error)) error {
	nh := h.(*nullHandle)
	nh.mu.Lock()
	defer nh.mu.Unlock()
	nh.timer = time.AfterFunc(nh.duration, func() { done(nil) })
	return nil
}

// Stop cancels the pending completion.
func (*NullBackend) Stop(h Handle) {
	nh := h.(*nullHandle)
	nh.mu.Lock()
	defer nh.mu.Unlock()
	if nh.timer != nil {
		nh.timer.Stop()
	}
}

// Release implements Backend.
func (b *NullBackend) Release(h Handle) { b.Stop(h) }

package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockBackend implements Backend for testing purposes.
// It simulates playback without producing sound and treats payloads as
// opaque bytes, so tests can use short labels like "A" as clips.
type MockBackend struct {
	mu sync.Mutex

	// Test configuration
	playDuration time.Duration
	failDecode   map[string]error
	decodeDelay  map[string]time.Duration
	failPlay     map[string]error
	failAsync    map[string]error
	hang         map[string]bool
	failDevice   map[string]error

	// Recorded play attempts, in order
	attempts []Attempt

	callbacks MockCallbacks

	// Concurrency tracking
	active        atomic.Int32
	maxConcurrent atomic.Int32

	// Metrics for testing
	decodeCount  atomic.Int64
	playCount    atomic.Int64
	stopCount    atomic.Int64
	releaseCount atomic.Int64
}

// Attempt records one Play call.
type Attempt struct {
	Payload  string
	DeviceID string
	Err      error
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay    func(payload string, deviceID string)
	OnStop    func(payload string)
	OnRelease func(payload string)
}

// MockHandle is the Handle produced by MockBackend.
type MockHandle struct {
	payload  string
	deviceID string
	duration time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	released atomic.Bool
	playing  atomic.Bool
}

// Duration implements Handle.
func (h *MockHandle) Duration() time.Duration { return h.duration }

// Released reports whether Release was called on the handle.
func (h *MockHandle) Released() bool { return h.released.Load() }

// NewMockBackend creates a mock whose clips play for playDuration.
func NewMockBackend(playDuration time.Duration) *MockBackend {
	return &MockBackend{
		playDuration: playDuration,
		failDecode:   make(map[string]error),
		decodeDelay:  make(map[string]time.Duration),
		failPlay:     make(map[string]error),
		failAsync:    make(map[string]error),
		hang:         make(map[string]bool),
		failDevice:   make(map[string]error),
	}
}

// SetCallbacks installs test hooks.
func (m *MockBackend) SetCallbacks(cb MockCallbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// FailDecode makes Decode of payload return err.
func (m *MockBackend) FailDecode(payload string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDecode[payload] = err
}

// DelayDecode makes Decode of payload block for d.
func (m *MockBackend) DelayDecode(payload string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodeDelay[payload] = d
}

// FailPlay makes Play of payload return err immediately.
func (m *MockBackend) FailPlay(payload string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay[payload] = err
}

// FailAsync makes payload start, then complete with err.
func (m *MockBackend) FailAsync(payload string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAsync[payload] = err
}

// Hang makes payload start and never complete.
func (m *MockBackend) Hang(payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang[payload] = true
}

// FailDevice makes SetOutputDevice fail for deviceID.
func (m *MockBackend) FailDevice(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDevice[deviceID] = err
}

// Name implements Backend.
func (m *MockBackend) Name() string { return "mock" }

// Decode implements Backend.
func (m *MockBackend) Decode(payload []byte) (Handle, error) {
	m.decodeCount.Add(1)
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	m.mu.Lock()
	err := m.failDecode[string(payload)]
	delay := m.decodeDelay[string(payload)]
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	return &MockHandle{
		payload:  string(payload),
		duration: m.playDuration,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetOutputDevice implements Backend.
func (m *MockBackend) SetOutputDevice(h Handle, deviceID string) error {
	mh, ok := h.(*MockHandle)
	if !ok {
		return errors.New("mock: unexpected handle")
	}

	m.mu.Lock()
	err := m.failDevice[deviceID]
	m.mu.Unlock()
	if err != nil {
		return err
	}

	mh.deviceID = deviceID
	return nil
}

// Play implements Backend.
func (m *MockBackend) Play(h Handle, done func(error)) error {
	mh, ok := h.(*MockHandle)
	if !ok {
		return errors.New("mock: unexpected handle")
	}
	m.playCount.Add(1)

	m.mu.Lock()
	err := m.failPlay[mh.payload]
	asyncErr := m.failAsync[mh.payload]
	hang := m.hang[mh.payload]
	m.attempts = append(m.attempts, Attempt{Payload: mh.payload, DeviceID: mh.deviceID, Err: err})
	cb := m.callbacks
	m.mu.Unlock()

	if err != nil {
		return err
	}

	mh.playing.Store(true)
	n := m.active.Add(1)
	for {
		peak := m.maxConcurrent.Load()
		if n <= peak || m.maxConcurrent.CompareAndSwap(peak, n) {
			break
		}
	}

	if cb.OnPlay != nil {
		cb.OnPlay(mh.payload, mh.deviceID)
	}

	go m.simulatePlayback(mh, hang, asyncErr, done)
	return nil
}

// simulatePlayback waits out the clip duration unless stopped first.
func (m *MockBackend) simulatePlayback(h *MockHandle, hang bool, err error, done func(error)) {
	var finished <-chan time.Time
	if !hang {
		timer := time.NewTimer(h.duration)
		defer timer.Stop()
		finished = timer.C
	}

	select {
	case <-h.stopCh:
		return
	case <-finished:
		m.markIdle(h)
		done(err)
	}
}

func (m *MockBackend) markIdle(h *MockHandle) {
	if h.playing.CompareAndSwap(true, false) {
		m.active.Add(-1)
	}
}

// Stop implements Backend.
func (m *MockBackend) Stop(h Handle) {
	mh, ok := h.(*MockHandle)
	if !ok {
		return
	}
	m.stopCount.Add(1)
	mh.stopOnce.Do(func() { close(mh.stopCh) })
	m.markIdle(mh)

	m.mu.Lock()
	cb := m.callbacks
	m.mu.Unlock()
	if cb.OnStop != nil {
		cb.OnStop(mh.payload)
	}
}

// Release implements Backend.
func (m *MockBackend) Release(h Handle) {
	mh, ok := h.(*MockHandle)
	if !ok {
		return
	}
	m.releaseCount.Add(1)
	mh.released.Store(true)
	mh.stopOnce.Do(func() { close(mh.stopCh) })
	m.markIdle(mh)

	m.mu.Lock()
	cb := m.callbacks
	m.mu.Unlock()
	if cb.OnRelease != nil {
		cb.OnRelease(mh.payload)
	}
}

// Attempts returns a copy of the recorded play attempts.
func (m *MockBackend) Attempts() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// MaxConcurrent returns the largest number of clips ever playing at once.
func (m *MockBackend) MaxConcurrent() int {
	return int(m.maxConcurrent.Load())
}

// Active returns the number of clips currently playing.
func (m *MockBackend) Active() int {
	return int(m.active.Load())
}

// GetMetrics returns call counts for testing.
func (m *MockBackend) GetMetrics() MockBackendMetrics {
	return MockBackendMetrics{
		DecodeCount:  m.decodeCount.Load(),
		PlayCount:    m.playCount.Load(),
		StopCount:    m.stopCount.Load(),
		ReleaseCount: m.releaseCount.Load(),
	}
}

// MockBackendMetrics contains call counts for testing.
type MockBackendMetrics struct {
	DecodeCount  int64
	PlayCount    int64
	StopCount    int64
	ReleaseCount int64
}

// WaitForAttempts polls until at least n play attempts were recorded.
func (m *MockBackend) WaitForAttempts(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.Attempts()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(m.Attempts()) >= n
}

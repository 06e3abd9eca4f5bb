package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/loop"
	"github.com/dgnsrekt/caption-router/internal/queue"
	"github.com/dustin/go-humanize"
)

// DefaultStallTimeout bounds how long one clip may hold the playing state.
const DefaultStallTimeout = 60 * time.Second

// Clip is one unit of synthesized speech waiting to be played.
type Clip struct {
	PhraseID       string
	Payload        []byte
	TargetDeviceID string // device snapshot taken at enqueue time
	Language       string
	EnqueuedAt     time.Time
}

// Observer receives playback events on the engine's loop.
type Observer interface {
	OnClipStarted(clip Clip)
	OnClipFinished(clip Clip, err error)
}

type noopObserver struct{}

func (noopObserver) OnClipStarted(Clip)         {}
func (noopObserver) OnClipFinished(Clip, error) {}

// EngineConfig bounds an Engine. Zero queue limits mean unbounded.
type EngineConfig struct {
	StallTimeout time.Duration
	MaxQueue     int
	MemoryLimit  int64
}

// EngineStats counts what happened to clips.
type EngineStats struct {
	Enqueued        int64
	Rejected        int64
	Played          int64
	Failed          int64
	Stalled         int64
	Stopped         int64
	Dropped         int64
	DeviceFallbacks int64
}

type playback struct {
	clip   Clip
	handle Handle
	gen    uint64
}

// Engine serializes one player's clips through a Backend.
//
// All methods must be called on the engine's loop. Backend completions are
// posted back to it.
type Engine struct {
	loop     *loop.Loop
	backend  Backend
	observer Observer
	logger   *log.Logger
	config   EngineConfig

	queue    *queue.Queue[Clip]
	enabled  bool
	closed   bool
	playing  bool
	draining bool
	current  *playback
	gen      uint64
	watchdog *loop.Timer

	stats EngineStats
}

// NewEngine creates a disabled engine.
func NewEngine(l *loop.Loop, backend Backend, observer Observer, config EngineConfig, logger *log.Logger) *Engine {
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultStallTimeout
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		loop:     l,
		backend:  backend,
		observer: observer,
		logger:   logger,
		config:   config,
		queue: queue.New(queue.Options[Clip]{
			MaxSize:     config.MaxQueue,
			MemoryLimit: config.MemoryLimit,
			Size:        func(c Clip) int64 { return int64(len(c.Payload)) },
		}),
	}
}

// Enqueue appends clip and starts playback if idle. It reports false when
// the engine is disabled or the queue refused the clip.
func (e *Engine) Enqueue(clip Clip) bool {
	if !e.enabled || e.closed {
		e.stats.Rejected++
		return false
	}
	if clip.EnqueuedAt.IsZero() {
		clip.EnqueuedAt = time.Now()
	}

	if err := e.queue.Enqueue(clip); err != nil {
		e.stats.Rejected++
		e.logger.Warn("Clip rejected", "phrase", clip.PhraseID, "size", humanize.Bytes(uint64(len(clip.Payload))), "err", err)
		return false
	}
	e.stats.Enqueued++

	e.drain()
	return true
}

// drain starts the head clip when nothing is playing. A clip that fails to
// start is finished in place and the loop moves on, so a run of bad clips
// never recurses.
func (e *Engine) drain() {
	if e.draining {
		return
	}
	e.draining = true
	defer func() { e.draining = false }()

	for !e.playing && !e.closed {
		clip, err := e.queue.TryDequeue()
		if err != nil {
			return
		}
		e.start(clip)
	}
}

// start claims the playing state for clip and decodes it off the loop. The
// stall watchdog covers decoding too.
func (e *Engine) start(clip Clip) {
	e.gen++
	gen := e.gen
	e.playing = true
	e.current = &playback{clip: clip, gen: gen}
	e.watchdog = e.loop.AfterFunc(e.config.StallTimeout, func() { e.stall(gen) })

	backend, payload := e.backend, clip.Payload
	go func() {
		handle, err := backend.Decode(payload)
		if !e.loop.Post(func() { e.decoded(gen, handle, err) }) && handle != nil {
			backend.Release(handle)
		}
	}()
}

// decoded starts playback of generation gen. Handles that arrive after the
// clip was stopped or stalled are released unplayed.
func (e *Engine) decoded(gen uint64, handle Handle, err error) {
	cur := e.current
	if cur == nil || cur.gen != gen {
		if handle != nil {
			e.backend.Release(handle)
		}
		return
	}
	if err != nil {
		e.finish(gen, fmt.Errorf("decode: %w", err))
		return
	}
	cur.handle = handle
	clip := cur.clip

	if err := e.backend.SetOutputDevice(handle, clip.TargetDeviceID); err != nil {
		e.stats.DeviceFallbacks++
		e.logger.Warn("Output device unavailable, using default",
			"device", clip.TargetDeviceID, "backend", e.backend.Name(), "err", err)
		if clip.TargetDeviceID != "" {
			_ = e.backend.SetOutputDevice(handle, "")
		}
	}

	err = e.backend.Play(handle, func(err error) {
		e.loop.Post(func() { e.finish(gen, err) })
	})
	if err != nil {
		e.finish(gen, fmt.Errorf("play: %w", err))
		return
	}

	e.logger.Debug("Clip started", "phrase", clip.PhraseID, "device", clip.TargetDeviceID,
		"size", humanize.Bytes(uint64(len(clip.Payload))), "duration", handle.Duration())
	e.observer.OnClipStarted(clip)
}

// finish ends the clip of generation gen. Completions for clips that were
// already stopped or replaced are ignored.
func (e *Engine) finish(gen uint64, err error) {
	cur := e.current
	if cur == nil || cur.gen != gen {
		return
	}
	e.current = nil
	e.watchdog.Stop()
	e.watchdog = nil

	if cur.handle != nil {
		e.backend.Release(cur.handle)
	}
	e.playing = false

	switch {
	case err == nil:
		e.stats.Played++
		e.logger.Debug("Clip finished", "phrase", cur.clip.PhraseID)
	case errors.Is(err, ErrStalled):
		e.stats.Stalled++
		e.logger.Warn("Clip stalled", "phrase", cur.clip.PhraseID, "timeout", e.config.StallTimeout)
	default:
		e.stats.Failed++
		e.logger.Warn("Clip failed", "phrase", cur.clip.PhraseID, "err", err)
	}

	e.observer.OnClipFinished(cur.clip, err)
	e.drain()
}

func (e *Engine) stall(gen uint64) {
	cur := e.current
	if cur == nil || cur.gen != gen {
		return
	}
	if cur.handle != nil {
		e.backend.Stop(cur.handle)
	}
	e.finish(gen, ErrStalled)
}

// Stop halts the playing clip and drops everything queued. It is safe to
// call when idle.
func (e *Engine) Stop() {
	dropped := e.queue.Clear()
	e.stats.Dropped += int64(len(dropped))

	if cur := e.current; cur != nil {
		e.current = nil
		e.watchdog.Stop()
		e.watchdog = nil
		if cur.handle != nil {
			e.backend.Stop(cur.handle)
			e.backend.Release(cur.handle)
		}
		e.stats.Stopped++
		e.observer.OnClipFinished(cur.clip, ErrStopped)
	}
	e.playing = false

	if len(dropped) > 0 {
		e.logger.Debug("Playback stopped", "dropped", len(dropped))
	}
}

// SetEnabled turns clip acceptance on or off. Disabling stops playback and
// clears the queue.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
	if !enabled {
		e.Stop()
	}
}

// Enabled reports whether clips are accepted.
func (e *Engine) Enabled() bool { return e.enabled && !e.closed }

// IsPlaying reports whether a clip holds the playing state.
func (e *Engine) IsPlaying() bool { return e.playing }

// Current returns the playing clip, if any.
func (e *Engine) Current() (Clip, bool) {
	if e.current == nil {
		return Clip{}, false
	}
	return e.current.clip, true
}

// QueueLen returns the number of clips waiting.
func (e *Engine) QueueLen() int { return e.queue.Size() }

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() EngineStats { return e.stats }

// QueueStats returns the underlying queue statistics.
func (e *Engine) QueueStats() queue.Stats { return e.queue.GetStats() }

// Close stops playback and refuses all further clips.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.Stop()
	e.enabled = false
	e.closed = true
	_ = e.queue.Close()
}

// Outcome names how a clip ended: "played", "stopped", "stalled" or
// "failed".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "played"
	case errors.Is(err, ErrStopped):
		return "stopped"
	case errors.Is(err, ErrStalled):
		return "stalled"
	default:
		return "failed"
	}
}

package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyPayload is returned when a clip carries no audio bytes.
	ErrEmptyPayload = errors.New("empty audio payload")

	// ErrSinkUnsupported is returned by backends that cannot route a clip
	// to a specific output device.
	ErrSinkUnsupported = errors.New("output device selection not supported")

	// ErrStalled is reported when a clip exceeds the stall timeout.
	ErrStalled = errors.New("playback stalled")

	// ErrStopped is reported for a clip interrupted by Stop.
	ErrStopped = errors.New("playback stopped")

	// ErrDisabled is returned when a clip is offered to a disabled engine.
	ErrDisabled = errors.New("audio disabled")

	// ErrUnknownBackend is returned by NewBackend for unrecognized names.
	ErrUnknownBackend = errors.New("unknown audio backend")
)

// Handle is a decoded clip owned by a Backend.
type Handle interface {
	Duration() time.Duration
}

// Backend is the playable-audio primitive.
//
// Decode runs on its own goroutine and may take as long as it needs; the
// engine's stall timeout bounds it. SetOutputDevice, Play, Stop and Release
// run on the player's loop and must not block.
//
// Play starts playback and returns immediately. done is invoked at most
// once, from any goroutine, when playback ends naturally or fails. After
// Stop a backend may or may not invoke done. Release frees the handle and
// is called exactly once per decoded handle.
type Backend interface {
	Name() string
	Decode(payload []byte) (Handle, error)
	SetOutputDevice(h Handle, deviceID string) error
	Play(h Handle, done func(error)) error
	Stop(h Handle)
	Release(h Handle)
}

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Name       string   // oto, exec, null
	SampleRate int      // oto output rate
	Channels   int      // oto output channels
	BufferSize int      // oto buffer in bytes
	Volume     float64  // oto volume, 0.0 to 1.0
	Command    []string // exec command template
}

// NewBackend constructs the backend named in cfg.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "oto":
		oc := DefaultOtoConfig()
		if cfg.SampleRate != 0 {
			oc.SampleRate = cfg.SampleRate
		}
		if cfg.Channels != 0 {
			oc.Channels = cfg.Channels
		}
		if cfg.BufferSize != 0 {
			oc.BufferSize = cfg.BufferSize
		}
		if cfg.Volume != 0 {
			oc.Volume = cfg.Volume
		}
		return NewOtoBackend(oc)
	case "exec":
		return NewExecBackend(cfg.Command)
	case "null":
		return NewNullBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Name)
	}
}

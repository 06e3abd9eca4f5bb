package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process; every OtoBackend shares it.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoErr    error
	otoConfig OtoConfig
)

// OtoConfig contains configuration for the oto backend.
type OtoConfig struct {
	SampleRate   int     // 44100 or 48000 Hz only
	Channels     int     // 1 = mono, 2 = stereo
	BitDepth     int     // 16 bits per sample
	BufferSize   int     // Buffer size in bytes
	Volume       float64 // 0.0 to 1.0
	PollInterval time.Duration
}

// DefaultOtoConfig returns the default oto configuration.
func DefaultOtoConfig() OtoConfig {
	return OtoConfig{
		SampleRate:   44100,
		Channels:     1,
		BitDepth:     16,
		BufferSize:   4096,
		Volume:       1.0,
		PollInterval: 20 * time.Millisecond,
	}
}

// validateConfig validates the oto configuration.
func validateConfig(config OtoConfig) error {
	// OTO only supports specific sample rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}

	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}

	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}

	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	if config.Volume < 0.0 || config.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", config.Volume)
	}

	return nil
}

// sharedContext creates the process-wide oto context on first use. Later
// callers must ask for the same format.
func sharedContext(config OtoConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready

		otoCtx = ctx
		otoConfig = config
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoConfig.SampleRate != config.SampleRate || otoConfig.Channels != config.Channels {
		return nil, fmt.Errorf("oto context already open at %d Hz/%d ch", otoConfig.SampleRate, otoConfig.Channels)
	}
	return otoCtx, nil
}

// OtoBackend plays clips on the default output device through oto.
type OtoBackend struct {
	context *oto.Context
	config  OtoConfig
}

// NewOtoBackend opens (or reuses) the shared oto context.
func NewOtoBackend(config OtoConfig) (*OtoBackend, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultOtoConfig().PollInterval
	}

	ctx, err := sharedContext(config)
	if err != nil {
		return nil, err
	}

	return &OtoBackend{context: ctx, config: config}, nil
}

// AudioStream holds rendered PCM. The data must stay referenced for as long
// as oto reads from it.
type AudioStream struct {
	data     []byte
	reader   io.ReadSeeker
	duration time.Duration

	player   *oto.Player
	stopCh   chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// Duration implements Handle.
func (s *AudioStream) Duration() time.Duration { return s.duration }

// Close drops the stream's data.
func (s *AudioStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.data = nil
	s.reader = nil
}

// IsClosed returns whether the stream is closed.
func (s *AudioStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Name implements Backend.
func (b *OtoBackend) Name() string { return "oto" }

// Decode renders a WAV payload to the context's PCM format.
func (b *OtoBackend) Decode(payload []byte) (Handle, error) {
	pcm, duration, err := renderPCM(payload, b.config.SampleRate, b.config.Channels)
	if err != nil {
		return nil, err
	}
	return &AudioStream{
		data:     pcm,
		reader:   bytes.NewReader(pcm),
		duration: duration,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetOutputDevice accepts only the system default device.
func (b *OtoBackend) SetOutputDevice(h Handle, deviceID string) error {
	if deviceID != "" {
		return fmt.Errorf("%w: oto plays on the system default", ErrSinkUnsupported)
	}
	return nil
}

// Play starts the stream and polls for completion.
func (b *OtoBackend) Play(h Handle, done func(error)) error {
	stream, ok := h.(*AudioStream)
	if !ok {
		return fmt.Errorf("oto: unexpected handle %T", h)
	}
	if stream.IsClosed() {
		return errors.New("oto: stream is closed")
	}

	player := b.context.NewPlayer(stream.reader)
	if player == nil {
		return errors.New("failed to create oto player")
	}
	player.SetVolume(b.config.Volume)
	stream.player = player
	player.Play()

	go b.watch(stream, player, done)
	return nil
}

func (b *OtoBackend) watch(stream *AudioStream, player *oto.Player, done func(error)) {
	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.stopCh:
			return
		case <-ticker.C:
			if player.IsPlaying() {
				continue
			}
			done(player.Err())
			return
		}
	}
}

// Stop pauses the stream and ends its completion watcher.
func (b *OtoBackend) Stop(h Handle) {
	stream, ok := h.(*AudioStream)
	if !ok {
		return
	}
	stream.stopOnce.Do(func() { close(stream.stopCh) })
	if stream.player != nil {
		stream.player.Pause()
	}
}

// Release closes the oto player and drops the PCM data.
func (b *OtoBackend) Release(h Handle) {
	stream, ok := h.(*AudioStream)
	if !ok {
		return
	}
	stream.stopOnce.Do(func() { close(stream.stopCh) })
	if stream.player != nil {
		_ = stream.player.Close()
		stream.player = nil
	}
	stream.Close()
}

package supervisor

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/loop"
	"github.com/dgnsrekt/caption-router/internal/router"
	"github.com/dgnsrekt/caption-router/internal/transcript"
)

// PlayerConfig is the persisted form of a player.
type PlayerConfig struct {
	Language     string `yaml:"language" json:"language"`
	DeviceID     string `yaml:"device,omitempty" json:"device,omitempty"`
	AudioEnabled bool   `yaml:"audio" json:"audio"`
}

// PlayerInfo is a read-only snapshot of a player.
type PlayerInfo struct {
	ID            string
	Config        PlayerConfig
	State         connection.State
	StateMessage  string
	Attempts      int
	QueueLen      int
	Playing       bool
	PlayingPhrase string // phrase of the clip being played
	LastActivity  time.Time
	Engine        audio.EngineStats
	Connection    connection.Stats
	Router        router.Stats
}

// Player wires one session, router, engine and transcript together. Its
// fields are owned by its loop.
type Player struct {
	id     string
	loop   *loop.Loop
	bus    *Bus
	logger *log.Logger
	names  func(code string) string

	config       PlayerConfig
	lastActivity time.Time

	manager *connection.Manager
	router  *router.Router
	engine  *audio.Engine
	store   *transcript.Store
	archive *transcript.PlayerArchive
	sink    transcript.Sink
}

// AudioEnabled implements router.Settings.
func (p *Player) AudioEnabled() bool { return p.config.AudioEnabled }

// DeviceID implements router.Settings.
func (p *Player) DeviceID() string { return p.config.DeviceID }

// Language implements router.Settings.
func (p *Player) Language() string { return p.config.Language }

// OnStateChange implements connection.Handler.
func (p *Player) OnStateChange(state connection.State, message string) {
	p.bus.Publish(StatusChangedEvent{
		PlayerID: p.id,
		State:    state,
		Message:  message,
		Attempts: p.manager.Attempts(),
	})

	switch state {
	case connection.StateConnected:
		p.logger.Info("Connected", "language", p.config.Language)
	case connection.StateEnded:
		p.engine.Stop()
	}
}

// OnMessage implements connection.Handler.
func (p *Player) OnMessage(data []byte) {
	p.lastActivity = time.Now()

	kind, err := p.router.Dispatch(data)
	p.bus.Publish(FrameReceivedEvent{PlayerID: p.id, Kind: kind, Err: err})
	if err != nil && !errors.Is(err, router.ErrEmptySpeech) {
		p.publishError(NewPlayerError(err, p.id, "router", "dispatch").
			WithSeverity(SeverityWarning).
			WithContext("bytes", len(data)))
	}
}

// OnReconnectScheduled implements connection.Handler.
func (p *Player) OnReconnectScheduled(attempt int, delay time.Duration) {
	p.bus.Publish(ReconnectScheduledEvent{PlayerID: p.id, Attempt: attempt, Delay: delay})
}

// OnClipStarted implements audio.Observer.
func (p *Player) OnClipStarted(clip audio.Clip) {
	if clip.PhraseID != "" {
		p.sink.MarkPlaying(clip.PhraseID, true)
	}
	p.bus.Publish(ClipStartedEvent{
		PlayerID: p.id,
		PhraseID: clip.PhraseID,
		DeviceID: clip.TargetDeviceID,
		Bytes:    len(clip.Payload),
	})
}

// OnClipFinished implements audio.Observer.
func (p *Player) OnClipFinished(clip audio.Clip, err error) {
	if clip.PhraseID != "" {
		p.sink.MarkPlaying(clip.PhraseID, false)
	}
	p.bus.Publish(ClipFinishedEvent{
		PlayerID: p.id,
		PhraseID: clip.PhraseID,
		Latency:  time.Since(clip.EnqueuedAt),
		Err:      err,
	})
	if err != nil && !errors.Is(err, audio.ErrStopped) {
		p.publishError(NewPlayerError(err, p.id, "audio", "play").
			WithSeverity(SeverityWarning).
			WithContext("phrase", clip.PhraseID).
			WithContext("device", clip.TargetDeviceID))
	}
}

func (p *Player) publishError(err *PlayerError) {
	p.bus.Publish(PlayerErrorEvent{Err: err})
}

func (p *Player) info() PlayerInfo {
	info := PlayerInfo{
		ID:           p.id,
		Config:       p.config,
		State:        p.manager.State(),
		StateMessage: p.manager.Message(),
		Attempts:     p.manager.Attempts(),
		QueueLen:     p.engine.QueueLen(),
		Playing:      p.engine.IsPlaying(),
		LastActivity: p.lastActivity,
		Engine:       p.engine.Stats(),
		Connection:   p.manager.Stats(),
		Router:       p.router.Stats(),
	}
	if clip, ok := p.engine.Current(); ok {
		info.PlayingPhrase = clip.PhraseID
	}
	return info
}

func (p *Player) open() {
	if err := p.manager.Open(); err != nil {
		p.logger.Warn("Not reconnecting", "err", err)
		p.publishError(NewPlayerError(err, p.id, "connection", "open").WithSeverity(SeverityInfo))
	}
}

// disconnect stops audio and closes the session intentionally.
func (p *Player) disconnect() {
	p.engine.Stop()
	p.manager.Close()
}

func (p *Player) teardown() {
	p.engine.Close()
	p.manager.Close()
}

func (p *Player) applyLanguage(code string) {
	if code == p.config.Language {
		return
	}
	p.config.Language = code
	p.engine.Stop()

	live := p.manager.Live()
	p.manager.ChangeLanguage(code)
	if p.archive != nil {
		p.archive.SetLanguage(code)
	}
	if live {
		p.sink.AppendSystemNote("Language changed to "+p.names(code), false)
	}
	p.logger.Info("Language changed", "language", code, "live", live)
}

func (p *Player) applyDevice(deviceID string) {
	p.config.DeviceID = deviceID
	p.logger.Info("Output device changed", "device", deviceID)
}

func (p *Player) applyAudioEnabled(enabled bool) {
	if enabled == p.config.AudioEnabled {
		return
	}
	p.config.AudioEnabled = enabled
	p.engine.SetEnabled(enabled)
	p.manager.SetVoice(enabled)
	p.logger.Info("Audio toggled", "enabled", enabled)
}

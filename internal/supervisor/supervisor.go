// Package supervisor owns the set of live players and wires each player's
// session, router, playback engine and transcript together.
package supervisor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/dgnsrekt/caption-router/internal/loop"
	"github.com/dgnsrekt/caption-router/internal/router"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	"github.com/google/uuid"
)

// DefaultLanguage is used for players configured without one.
const DefaultLanguage = "en"

// Options configures a Supervisor.
type Options struct {
	Credentials session.Credentials
	Transport   connection.Transport
	Connection  connection.Config // Credentials and Language are set per player
	Backend     audio.Backend
	Engine      audio.EngineConfig
	Catalog     *languages.Catalog

	TranscriptMax int
	Archive       *transcript.Archive // optional
	LogTranscript bool                // also write transcripts to the logger

	Logger *log.Logger
}

// Supervisor creates, drives and removes players.
type Supervisor struct {
	opts   Options
	bus    *Bus
	logger *log.Logger

	mu      sync.RWMutex
	players map[string]*Player
	order   []string
	closed  bool
}

// New creates a supervisor without players.
func New(opts Options) (*Supervisor, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("supervisor: transport is required")
	}
	if err := opts.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	if opts.Backend == nil {
		opts.Backend = audio.NewNullBackend()
	}
	if opts.Catalog == nil {
		opts.Catalog = languages.Default()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Supervisor{
		opts:    opts,
		bus:     NewBus(),
		logger:  opts.Logger.WithPrefix("supervisor"),
		players: make(map[string]*Player),
	}, nil
}

// Bus returns the event bus players publish on.
func (s *Supervisor) Bus() *Bus { return s.bus }

// Subscribe is a shorthand for Bus().Subscribe.
func (s *Supervisor) Subscribe(handler any) func() {
	return s.bus.Subscribe(handler)
}

func newPlayerID() string {
	return "player-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// AddPlayer creates a player, opens its session and returns its id.
func (s *Supervisor) AddPlayer(cfg PlayerConfig) (string, error) {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if err := s.opts.Catalog.Validate(cfg.Language); err != nil {
		return "", err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	id := newPlayerID()
	logger := s.opts.Logger.With("player", id)
	p := &Player{
		id:     id,
		loop:   loop.New(),
		bus:    s.bus,
		logger: logger,
		names:  s.opts.Catalog.NameOf,
		config: cfg,
	}

	err := p.loop.Do(func() {
		p.store = transcript.NewStore(s.opts.TranscriptMax)
		p.store.OnChange(func() { s.bus.Publish(TranscriptUpdatedEvent{PlayerID: id}) })

		sinks := transcript.Tee{p.store}
		if s.opts.LogTranscript {
			sinks = append(sinks, transcript.LogSink{Logger: logger.With("language", cfg.Language)})
		}
		if s.opts.Archive != nil {
			p.archive = s.opts.Archive.ForPlayer(id, cfg.Language)
			sinks = append(sinks, p.archive)
		}
		p.sink = sinks

		connCfg := s.opts.Connection
		connCfg.Credentials = s.opts.Credentials
		connCfg.Language = cfg.Language
		connCfg.Voice = cfg.AudioEnabled

		p.engine = audio.NewEngine(p.loop, s.opts.Backend, p, s.opts.Engine, logger.WithPrefix("audio"))
		p.engine.SetEnabled(cfg.AudioEnabled)
		p.manager = connection.NewManager(p.loop, s.opts.Transport, p, connCfg, logger.WithPrefix("connection"))
		p.router = router.New(p.manager, p.sink, p.engine, p, logger.WithPrefix("router"))
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = p.loop.Do(p.teardown)
		p.loop.Close()
		return "", ErrClosed
	}
	s.players[id] = p
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.bus.Publish(PlayerAddedEvent{PlayerID: id, Config: cfg})
	s.logger.Info("Player added", "player", id, "language", cfg.Language, "device", cfg.DeviceID, "audio", cfg.AudioEnabled)

	_ = p.loop.Do(p.open)
	return id, nil
}

func (s *Supervisor) get(id string) (*Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return p, nil
}

// RemovePlayer stops a player's audio, closes its session intentionally
// and discards it. It reports whether the player existed.
func (s *Supervisor) RemovePlayer(id string) bool {
	s.mu.Lock()
	p, ok := s.players[id]
	if ok {
		delete(s.players, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	_ = p.loop.Do(p.teardown)
	p.loop.Close()

	s.bus.Publish(PlayerRemovedEvent{PlayerID: id})
	s.logger.Info("Player removed", "player", id)
	return true
}

func (s *Supervisor) snapshot() []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// DisconnectAll stops audio and closes every session intentionally. The
// players are kept; their configurations are returned.
func (s *Supervisor) DisconnectAll() []PlayerConfig {
	var configs []PlayerConfig
	for _, p := range s.snapshot() {
		_ = p.loop.Do(func() {
			p.disconnect()
			configs = append(configs, p.config)
		})
	}
	return configs
}

// ConnectAll reopens every player's session.
func (s *Supervisor) ConnectAll() {
	for _, p := range s.snapshot() {
		_ = p.loop.Do(p.open)
	}
}

// RemoveAll removes every player and returns their configurations.
func (s *Supervisor) RemoveAll() []PlayerConfig {
	var configs []PlayerConfig
	for _, p := range s.snapshot() {
		_ = p.loop.Do(func() { configs = append(configs, p.config) })
		s.RemovePlayer(p.id)
	}
	return configs
}

// LoadPreset replaces every player with the given configurations.
func (s *Supervisor) LoadPreset(configs []PlayerConfig) ([]string, error) {
	for _, cfg := range configs {
		lang := cfg.Language
		if lang == "" {
			lang = DefaultLanguage
		}
		if err := s.opts.Catalog.Validate(lang); err != nil {
			return nil, err
		}
	}

	s.RemoveAll()
	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		id, err := s.AddPlayer(cfg)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ApplyLanguage switches a player's language. Queued audio in the old
// language is dropped and a live session changes language in place.
func (s *Supervisor) ApplyLanguage(id, code string) error {
	if err := s.opts.Catalog.Validate(code); err != nil {
		return err
	}
	p, err := s.get(id)
	if err != nil {
		return err
	}
	return p.loop.Do(func() { p.applyLanguage(code) })
}

// ApplyDevice changes the output device for clips received afterwards.
func (s *Supervisor) ApplyDevice(id, deviceID string) error {
	p, err := s.get(id)
	if err != nil {
		return err
	}
	return p.loop.Do(func() { p.applyDevice(deviceID) })
}

// ApplyAudioEnabled turns a player's audio on or off and tells a live
// session whether to deliver speech.
func (s *Supervisor) ApplyAudioEnabled(id string, enabled bool) error {
	p, err := s.get(id)
	if err != nil {
		return err
	}
	return p.loop.Do(func() { p.applyAudioEnabled(enabled) })
}

// Players returns snapshots of all players in creation order.
func (s *Supervisor) Players() []PlayerInfo {
	var out []PlayerInfo
	for _, p := range s.snapshot() {
		_ = p.loop.Do(func() { out = append(out, p.info()) })
	}
	return out
}

// Player returns one player's snapshot.
func (s *Supervisor) Player(id string) (PlayerInfo, error) {
	p, err := s.get(id)
	if err != nil {
		return PlayerInfo{}, err
	}
	var info PlayerInfo
	if err := p.loop.Do(func() { info = p.info() }); err != nil {
		return PlayerInfo{}, err
	}
	return info, nil
}

// Configs returns every player's configuration in creation order.
func (s *Supervisor) Configs() []PlayerConfig {
	var out []PlayerConfig
	for _, p := range s.snapshot() {
		_ = p.loop.Do(func() { out = append(out, p.config) })
	}
	return out
}

// Transcript returns a player's retained transcript entries.
func (s *Supervisor) Transcript(id string) ([]transcript.Entry, error) {
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return p.store.Entries(), nil
}

// LatestPhrase returns a player's newest phrase.
func (s *Supervisor) LatestPhrase(id string) (transcript.Entry, bool) {
	p, err := s.get(id)
	if err != nil {
		return transcript.Entry{}, false
	}
	return p.store.LatestPhrase()
}

// Len returns the number of players.
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Close removes every player. Later AddPlayer calls fail with ErrClosed.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.RemoveAll()
}

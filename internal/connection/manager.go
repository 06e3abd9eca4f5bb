// Package connection owns a player's session with the captioning service:
// dialing, the connect handshake, heartbeats, language changes and
// reconnection with backoff.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/loop"
	"github.com/dgnsrekt/caption-router/internal/protocol"
	"github.com/dgnsrekt/caption-router/internal/session"
)

// DefaultEndpoint is the service's attendee websocket.
const DefaultEndpoint = "wss://endpoint.wordly.ai/attend"

var (
	// ErrEnded is returned by Open once the presentation has ended.
	ErrEnded = errors.New("session ended")

	// ErrHandshakeTimeout is reported when the service does not acknowledge
	// the connect request in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrNotConnected is returned when a frame is sent without a session.
	ErrNotConnected = errors.New("not connected")

	// ErrSendBufferFull is returned when the writer falls too far behind.
	ErrSendBufferFull = errors.New("send buffer full")
)

const sendBuffer = 64

// Config configures a Manager.
type Config struct {
	URL               string
	Credentials       session.Credentials
	Language          string
	Voice             bool // request synthesized speech after connecting
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
	VoiceSettleDelay  time.Duration
	Backoff           Backoff
	RetryRejected     bool
}

// DefaultConfig returns the recommended timings.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultEndpoint,
		Language:          "en",
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		VoiceSettleDelay:  time.Second,
		Backoff:           DefaultBackoff(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.VoiceSettleDelay <= 0 {
		c.VoiceSettleDelay = d.VoiceSettleDelay
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = d.Backoff
	}
}

// Handler receives manager events on the manager's loop.
type Handler interface {
	OnStateChange(state State, message string)
	OnMessage(data []byte)
	OnReconnectScheduled(attempt int, delay time.Duration)
}

// Stats counts session traffic.
type Stats struct {
	FramesSent     int64
	FramesReceived int64
	Dials          int64
	Reconnects     int64
}

type liveSession struct {
	gen  uint64
	conn Conn
	out  chan []byte
}

// Manager runs one player's session. All methods must be called on the
// manager's loop.
type Manager struct {
	loop      *loop.Loop
	transport Transport
	handler   Handler
	logger    *log.Logger
	config    Config

	sm          *stateMachine
	language    string
	voice       bool
	attempts    int
	intentional bool
	rejected    bool
	acked       bool // the live session's connect request was accepted

	gen        uint64
	sess       *liveSession
	cancelDial context.CancelFunc

	handshakeTimer *loop.Timer
	reconnectTimer *loop.Timer
	heartbeatTimer *loop.Timer
	voiceTimer     *loop.Timer

	stats Stats
}

// NewManager creates an idle manager.
func NewManager(l *loop.Loop, transport Transport, handler Handler, config Config, logger *log.Logger) *Manager {
	config.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		loop:      l,
		transport: transport,
		handler:   handler,
		logger:    logger,
		config:    config,
		sm:        newStateMachine(),
		language:  config.Language,
		voice:     config.Voice,
	}
}

// State returns the current state.
func (m *Manager) State() State { return m.sm.current }

// Message returns the text attached to the current state.
func (m *Manager) Message() string { return m.sm.message }

// Attempts returns the reconnect attempt count since the last successful
// connect.
func (m *Manager) Attempts() int { return m.attempts }

// Language returns the language used for identify and change requests.
func (m *Manager) Language() string { return m.language }

// Stats returns a copy of the traffic counters.
func (m *Manager) Stats() Stats { return m.stats }

// Live reports whether a session is open and was acknowledged. State is
// for display only; a service error frame moves it to error while the
// session stays live.
func (m *Manager) Live() bool { return m.sess != nil && m.acked }

func (m *Manager) setState(s State, message string) {
	prev := m.sm.current
	if !m.sm.transition(s, message) {
		m.logger.Debug("Ignored state transition", "from", prev, "to", s)
		return
	}
	if prev != s {
		m.logger.Debug("Session state", "from", prev, "to", s, "message", message)
	}
	m.handler.OnStateChange(s, message)
}

// Open starts a session. It is a no-op while a session is live and fails
// with ErrEnded after the presentation ended.
func (m *Manager) Open() error {
	if m.sm.current == StateEnded {
		return ErrEnded
	}
	if m.sess != nil || m.cancelDial != nil {
		return nil
	}

	m.intentional = false
	m.rejected = false
	m.reconnectTimer.Stop()
	m.reconnectTimer = nil
	m.dial()
	return nil
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	m.stats.Dials++
	m.setState(StateConnecting, "Connecting...")

	ctx, cancel := context.WithTimeout(context.Background(), m.config.HandshakeTimeout)
	m.cancelDial = cancel
	m.handshakeTimer = m.loop.AfterFunc(m.config.HandshakeTimeout, func() { m.handshakeExpired(gen) })

	url := m.config.URL
	go func() {
		conn, err := m.transport.Dial(ctx, url)
		if !m.loop.Post(func() { m.dialed(gen, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) dialed(gen uint64, conn Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.fail(gen, err)
		return
	}

	s := &liveSession{gen: gen, conn: conn, out: make(chan []byte, sendBuffer)}
	m.sess = s
	go m.writePump(s)
	go m.readPump(s)

	creds := m.config.Credentials
	if err := m.send(protocol.NewConnect(creds.Code, m.language, creds.AccessKey)); err != nil {
		m.fail(gen, err)
	}
}

func (m *Manager) readPump(s *liveSession) {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			m.loop.Post(func() { m.closed(s.gen, err) })
			return
		}
		m.loop.Post(func() { m.received(s.gen, data) })
	}
}

// writePump is the session's only writer. It closes the connection once
// the outbound channel is closed and drained.
func (m *Manager) writePump(s *liveSession) {
	defer func() { _ = s.conn.Close() }()

	for data := range s.out {
		if err := s.conn.WriteMessage(data); err != nil {
			m.loop.Post(func() { m.fail(s.gen, fmt.Errorf("write: %w", err)) })
			for range s.out {
			}
			return
		}
	}
}

func (m *Manager) send(frame any) error {
	if m.sess == nil {
		return ErrNotConnected
	}
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	select {
	case m.sess.out <- data:
		m.stats.FramesSent++
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (m *Manager) received(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}
	m.stats.FramesReceived++
	m.handler.OnMessage(data)
}

func (m *Manager) handshakeExpired(gen uint64) {
	if gen != m.gen || m.acked {
		return
	}
	m.logger.Warn("Handshake timed out", "timeout", m.config.HandshakeTimeout)
	m.fail(gen, ErrHandshakeTimeout)
}

// fail handles a transport-level failure of session gen.
func (m *Manager) fail(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.logger.Warn("Session failed", "err", err)
	m.teardown()
	m.setState(StateError, err.Error())
	m.scheduleReconnect()
}

// closed handles the end of session gen's read side.
func (m *Manager) closed(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.teardown()

	switch {
	case IsCleanClose(err):
		if m.sm.current != StateError {
			m.setState(StateDisconnected, "Connection closed")
		}
	default:
		m.logger.Warn("Session closed", "err", err)
		m.setState(StateError, fmt.Sprintf("Connection lost: %v", err))
	}
	m.scheduleReconnect()
}

// teardown drops the live session and every session-scoped timer.
func (m *Manager) teardown() {
	m.gen++
	m.acked = false

	m.handshakeTimer.Stop()
	m.heartbeatTimer.Stop()
	m.voiceTimer.Stop()
	m.handshakeTimer, m.heartbeatTimer, m.voiceTimer = nil, nil, nil

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.sess != nil {
		close(m.sess.out)
		m.sess = nil
	}
}

func (m *Manager) scheduleReconnect() {
	if m.intentional || m.rejected || m.sm.current == StateEnded {
		return
	}
	if m.reconnectTimer.Active() {
		return
	}

	m.attempts++
	m.stats.Reconnects++
	delay := m.config.Backoff.Delay(m.attempts)
	m.logger.Info("Reconnecting", "attempt", m.attempts, "delay", delay)

	m.reconnectTimer = m.loop.AfterFunc(delay, func() {
		m.reconnectTimer = nil
		if m.intentional || m.rejected || m.sm.current == StateEnded || m.sess != nil {
			return
		}
		m.dial()
	})
	m.handler.OnReconnectScheduled(m.attempts, delay)
}

// Acknowledge applies the service's answer to the connect request.
// Success marks the session connected and resets the attempt counter.
// Failure closes the session; it is retried only when RetryRejected is set.
func (m *Manager) Acknowledge(success bool, message string) {
	if m.sess == nil || m.sm.current == StateEnded {
		return
	}

	if success {
		if m.acked {
			if m.sm.current != StateConnected {
				m.setState(StateConnected, "Connected")
			}
			return
		}
		m.acked = true
		m.handshakeTimer.Stop()
		m.handshakeTimer = nil
		m.attempts = 0
		m.setState(StateConnected, "Connected")
		m.scheduleHeartbeat()
		return
	}

	m.logger.Warn("Connect rejected", "message", message)
	m.rejected = !m.config.RetryRejected
	m.teardown()
	m.setState(StateError, message)
	m.scheduleReconnect()
}

// ReportError surfaces a service error without closing the session.
func (m *Manager) ReportError(message string) {
	if m.sm.current == StateEnded {
		return
	}
	m.setState(StateError, message)
}

// End marks the presentation over. No reconnect is attempted afterwards.
func (m *Manager) End() {
	if m.sm.current == StateEnded {
		return
	}
	m.reconnectTimer.Stop()
	m.reconnectTimer = nil
	_ = m.send(protocol.NewDisconnect())
	m.teardown()
	m.setState(StateEnded, "Session ended")
}

// Close ends the session at the operator's request and suppresses
// reconnection until the next Open.
func (m *Manager) Close() {
	m.intentional = true
	m.reconnectTimer.Stop()
	m.reconnectTimer = nil

	if m.sess != nil {
		_ = m.send(protocol.NewDisconnect())
	}
	m.teardown()
	if m.sm.current != StateEnded && m.sm.current != StateIdle {
		m.setState(StateDisconnected, "Disconnected")
	}
}

func (m *Manager) scheduleHeartbeat() {
	gen := m.gen
	m.heartbeatTimer = m.loop.AfterFunc(m.config.HeartbeatInterval, func() {
		m.heartbeatTimer = nil
		if gen != m.gen || !m.acked {
			return
		}
		if err := m.send(protocol.NewEcho()); err != nil {
			m.fail(gen, fmt.Errorf("heartbeat: %w", err))
			return
		}
		m.scheduleHeartbeat()
	})
}

// SetVoice records whether synthesized speech is wanted and tells a live
// session.
func (m *Manager) SetVoice(enabled bool) {
	m.voice = enabled
	m.voiceTimer.Stop()
	m.voiceTimer = nil

	if !m.Live() {
		return
	}
	if err := m.send(protocol.NewVoice(enabled)); err != nil {
		m.fail(m.gen, err)
	}
}

// ChangeLanguage switches the session language in place. While voice is
// on, delivery is paused around the change so no audio in the old
// language arrives afterwards. Without a live session the language is
// used by the next connect.
func (m *Manager) ChangeLanguage(code string) {
	m.language = code
	if !m.Live() {
		return
	}

	gen := m.gen
	m.voiceTimer.Stop()
	m.voiceTimer = nil

	if m.voice {
		if err := m.send(protocol.NewVoice(false)); err != nil {
			m.fail(gen, err)
			return
		}
	}
	if err := m.send(protocol.NewChange(code)); err != nil {
		m.fail(gen, err)
		return
	}
	if !m.voice {
		return
	}

	m.voiceTimer = m.loop.AfterFunc(m.config.VoiceSettleDelay, func() {
		m.voiceTimer = nil
		if gen != m.gen || !m.voice || !m.acked {
			return
		}
		if err := m.send(protocol.NewVoice(true)); err != nil {
			m.fail(gen, err)
		}
	})
}

// Package router decodes a player's inbound frames and dispatches them to
// the session, the transcript and the playback engine.
package router

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/protocol"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	"golang.org/x/time/rate"
)

// Notes written to the transcript.
const (
	NoteEnded            = "The presentation has ended."
	defaultFailureStatus = "Connection failed"
)

// Session is the part of the connection manager the router drives.
type Session interface {
	Acknowledge(success bool, message string)
	SetVoice(enabled bool)
	End()
	ReportError(message string)
}

// Playback accepts clips for the player's engine.
type Playback interface {
	Enqueue(clip audio.Clip) bool
	Stop()
}

// Settings exposes the player's current settings. It is read on every
// frame so changes apply to the next frame.
type Settings interface {
	AudioEnabled() bool
	DeviceID() string
	Language() string
}

// Stats counts dispatched frames.
type Stats struct {
	Frames        map[protocol.Type]int64
	ClipsQueued   int64
	ClipsRejected int64
	Diagnostics   int64
	LastDiagnosis string
}

// Router dispatches frames for one player. Dispatch must be called on the
// player's loop.
type Router struct {
	session  Session
	sink     transcript.Sink
	playback Playback
	settings Settings
	logger   *log.Logger
	limiter  *rate.Limiter
	now      func() time.Time

	stats Stats
}

// New creates a router. A nil logger uses the default logger.
func New(session Session, sink transcript.Sink, playback Playback, settings Settings, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		session:  session,
		sink:     sink,
		playback: playback,
		settings: settings,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		now:      time.Now,
		stats:    Stats{Frames: make(map[protocol.Type]int64)},
	}
}

// Stats returns a copy of the dispatch counters.
func (r *Router) Stats() Stats {
	s := r.stats
	s.Frames = make(map[protocol.Type]int64, len(r.stats.Frames))
	for k, v := range r.stats.Frames {
		s.Frames[k] = v
	}
	return s
}

// Dispatch handles one raw inbound frame. It returns the decoded kind, or
// an error for frames that were only diagnosed. Errors are never fatal to
// the session.
func (r *Router) Dispatch(data []byte) (protocol.Type, error) {
	msg, err := protocol.Decode(data)
	if err != nil {
		r.diagnose("Ignored inbound frame", err)
		return "", err
	}

	kind := msg.Kind()
	r.stats.Frames[kind]++

	switch m := msg.(type) {
	case *protocol.Status:
		r.status(m)
	case *protocol.Phrase:
		r.sink.UpsertPhrase(m.PhraseID, m.Speaker(), m.TranslatedText, m.IsFinal)
	case *protocol.Speech:
		if err := r.speech(m); err != nil {
			return kind, err
		}
	case *protocol.Users:
		r.users(m)
	case *protocol.End:
		r.session.End()
		r.playback.Stop()
		r.sink.AppendSystemNote(NoteEnded, false)
	case *protocol.Error:
		r.session.ReportError(m.Message)
		r.sink.AppendSystemNote("Error: "+m.Message, true)
	}
	return kind, nil
}

func (r *Router) status(m *protocol.Status) {
	if m.Success {
		r.session.Acknowledge(true, m.Message)
		if r.settings.AudioEnabled() {
			r.session.SetVoice(true)
		}
		return
	}

	message := m.Message
	if message == "" {
		message = defaultFailureStatus
	}
	r.session.Acknowledge(false, message)
	r.sink.AppendSystemNote("Connection error: "+message, true)
}

// ErrEmptySpeech is reported for speech frames without audio.
var ErrEmptySpeech = errors.New("speech frame without audio data")

func (r *Router) speech(m *protocol.Speech) error {
	if !r.settings.AudioEnabled() {
		return nil
	}
	if len(m.SynthesizedSpeech.Data) == 0 {
		r.diagnose("Dropped speech", ErrEmptySpeech)
		return ErrEmptySpeech
	}

	language := m.TranslatedLanguageCode
	if language == "" {
		language = r.settings.Language()
	}
	clip := audio.Clip{
		PhraseID:       m.PhraseID,
		Payload:        []byte(m.SynthesizedSpeech.Data),
		TargetDeviceID: r.settings.DeviceID(),
		Language:       language,
		EnqueuedAt:     r.now(),
	}
	if !r.playback.Enqueue(clip) {
		r.stats.ClipsRejected++
		r.logger.Debug("Clip rejected", "phrase", m.PhraseID)
		return nil
	}
	r.stats.ClipsQueued++
	return nil
}

func (r *Router) users(m *protocol.Users) {
	if len(m.Presenters) > 0 {
		names := make([]string, 0, len(m.Presenters))
		for _, p := range m.Presenters {
			names = append(names, p.Label())
		}
		r.sink.AppendSystemNote("Presenters: "+strings.Join(names, ", "), false)
	}
	if n := m.AttendeeCount(); n > 0 {
		r.sink.AppendSystemNote(fmt.Sprintf("%d attendees connected", n), false)
	}
}

// diagnose counts a non-fatal problem and logs it, at most a few times a
// second.
func (r *Router) diagnose(msg string, err error) {
	r.stats.Diagnostics++
	r.stats.LastDiagnosis = err.Error()
	if r.limiter.Allow() {
		r.logger.Warn(msg, "err", err, "total", r.stats.Diagnostics)
	}
}

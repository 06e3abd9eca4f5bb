package supervisor

import (
	"time"

	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/protocol"
	"github.com/kelindar/event"
)

// Event type constants for kelindar/event.
const (
	TypePlayerAdded uint32 = iota + 1
	TypePlayerRemoved
	TypeStatusChanged
	TypeReconnectScheduled
	TypeClipStarted
	TypeClipFinished
	TypeTranscriptUpdated
	TypeFrameReceived
	TypePlayerError
)

// Event is implemented by everything published on the Bus.
type Event interface {
	Type() uint32
}

// PlayerAddedEvent is published after a player was created.
type PlayerAddedEvent struct {
	PlayerID string
	Config   PlayerConfig
}

// Type returns the event type identifier for PlayerAddedEvent.
func (e PlayerAddedEvent) Type() uint32 { return TypePlayerAdded }

// PlayerRemovedEvent is published after a player was torn down.
type PlayerRemovedEvent struct {
	PlayerID string
}

// Type returns the event type identifier for PlayerRemovedEvent.
func (e PlayerRemovedEvent) Type() uint32 { return TypePlayerRemoved }

// StatusChangedEvent reports a connection state transition.
type StatusChangedEvent struct {
	PlayerID string
	State    connection.State
	Message  string
	Attempts int
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// ReconnectScheduledEvent reports a pending reconnect.
type ReconnectScheduledEvent struct {
	PlayerID string
	Attempt  int
	Delay    time.Duration
}

// Type returns the event type identifier for ReconnectScheduledEvent.
func (e ReconnectScheduledEvent) Type() uint32 { return TypeReconnectScheduled }

// ClipStartedEvent reports that a clip began playing.
type ClipStartedEvent struct {
	PlayerID string
	PhraseID string
	DeviceID string
	Bytes    int
}

// Type returns the event type identifier for ClipStartedEvent.
func (e ClipStartedEvent) Type() uint32 { return TypeClipStarted }

// ClipFinishedEvent reports how a clip ended. Err is nil for a clip that
// played to completion.
type ClipFinishedEvent struct {
	PlayerID string
	PhraseID string
	Latency  time.Duration // enqueue to finish
	Err      error
}

// Type returns the event type identifier for ClipFinishedEvent.
func (e ClipFinishedEvent) Type() uint32 { return TypeClipFinished }

// Outcome classifies the clip result for display and metrics.
func (e ClipFinishedEvent) Outcome() string {
	return audio.Outcome(e.Err)
}

// TranscriptUpdatedEvent reports that a player's transcript changed.
type TranscriptUpdatedEvent struct {
	PlayerID string
}

// Type returns the event type identifier for TranscriptUpdatedEvent.
func (e TranscriptUpdatedEvent) Type() uint32 { return TypeTranscriptUpdated }

// FrameReceivedEvent reports one inbound frame. Kind is empty for frames
// that could not be decoded.
type FrameReceivedEvent struct {
	PlayerID string
	Kind     protocol.Type
	Err      error
}

// Type returns the event type identifier for FrameReceivedEvent.
func (e FrameReceivedEvent) Type() uint32 { return TypeFrameReceived }

// PlayerErrorEvent carries a failure worth surfacing.
type PlayerErrorEvent struct {
	Err *PlayerError
}

// Type returns the event type identifier for PlayerErrorEvent.
func (e PlayerErrorEvent) Type() uint32 { return TypePlayerError }

// Bus wraps a kelindar/event dispatcher for the supervisor's events.
type Bus struct {
	dispatcher *event.Dispatcher
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers of its type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PlayerAddedEvent:
		event.Publish(b.dispatcher, e)
	case PlayerRemovedEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case ReconnectScheduledEvent:
		event.Publish(b.dispatcher, e)
	case ClipStartedEvent:
		event.Publish(b.dispatcher, e)
	case ClipFinishedEvent:
		event.Publish(b.dispatcher, e)
	case TranscriptUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case FrameReceivedEvent:
		event.Publish(b.dispatcher, e)
	case PlayerErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns
// an unsubscribe function. Unknown handler types get a no-op.
//
//	unsub := bus.Subscribe(func(e StatusChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PlayerAddedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PlayerRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReconnectScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClipStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClipFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TranscriptUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PlayerErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

package connection

// State is the lifecycle state of a player's session.
type State int

const (
	// StateIdle indicates no session has been requested.
	StateIdle State = iota
	// StateConnecting indicates a dial or handshake is in progress.
	StateConnecting
	// StateConnected indicates the service acknowledged the connect request.
	StateConnected
	// StateDisconnected indicates the session closed cleanly.
	StateDisconnected
	// StateError indicates a transport or application failure.
	StateError
	// StateEnded indicates the presentation ended. It is terminal.
	StateEnded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// stateMachine validates session state transitions.
type stateMachine struct {
	current     State
	message     string
	transitions map[State][]State
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:         {StateConnecting, StateEnded},
			StateConnecting:   {StateConnected, StateError, StateDisconnected, StateIdle, StateEnded},
			StateConnected:    {StateDisconnected, StateError, StateIdle, StateEnded},
			StateDisconnected: {StateConnecting, StateError, StateIdle, StateEnded},
			StateError:        {StateConnecting, StateDisconnected, StateConnected, StateIdle, StateEnded},
			StateEnded:        {},
		},
	}
}

// transition moves to the given state. Re-entering the current state only
// updates the message. Ended accepts nothing.
func (sm *stateMachine) transition(to State, message string) bool {
	if sm.current == StateEnded {
		return false
	}
	if to == sm.current {
		sm.message = message
		return true
	}

	for _, s := range sm.transitions[sm.current] {
		if s == to {
			sm.current = to
			sm.message = message
			return true
		}
	}
	return false
}

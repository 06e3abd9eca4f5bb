package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/caption-router/internal/connection"
)

var (
	// ErrUnknownPlayer is returned for ids the supervisor does not own.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrClosed is returned once the supervisor has been closed.
	ErrClosed = errors.New("supervisor closed")
)

// Severity ranks a PlayerError.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for failures the player recovers from on its own.
	SeverityWarning
	// SeverityError is for failures that need the operator's attention.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// PlayerError provides detailed error information about a player failure.
type PlayerError struct {
	Err       error          // The underlying error
	PlayerID  string         // Player that failed
	Component string         // connection, router, audio or supervisor
	Action    string         // What the player was doing
	Severity  Severity       // Severity of the error
	Time      time.Time      // When the error occurred
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *PlayerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s failed", e.PlayerID, e.Component, e.Action)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.PlayerID, e.Component, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *PlayerError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether the player carries on by itself.
func (e *PlayerError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewPlayerError creates a player error with SeverityError.
func NewPlayerError(err error, playerID, component, action string) *PlayerError {
	return &PlayerError{
		Err:       err,
		PlayerID:  playerID,
		Component: component,
		Action:    action,
		Severity:  SeverityError,
		Time:      time.Now(),
		Context:   make(map[string]any),
	}
}

// WithSeverity sets the error severity.
func (e *PlayerError) WithSeverity(severity Severity) *PlayerError {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *PlayerError) WithContext(key string, value any) *PlayerError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRecoverableError reports whether err leaves the player working.
// Transport failures are retried, bad frames and bad clips are skipped.
// A finished presentation and a closed supervisor are not recoverable.
func IsRecoverableError(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, connection.ErrEnded),
		errors.Is(err, ErrClosed),
		errors.Is(err, ErrUnknownPlayer):
		return false
	}
	return true
}

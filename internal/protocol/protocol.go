// Package protocol encodes and decodes the JSON frames exchanged with the
// captioning service.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON objects
	// or lack a type field.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType is returned for well-formed frames of an unrecognized kind.
	ErrUnknownType = errors.New("unknown frame type")
)

// Type identifies a frame kind.
type Type string

// Outbound frame types.
const (
	TypeConnect    Type = "connect"
	TypeChange     Type = "change"
	TypeVoice      Type = "voice"
	TypeDisconnect Type = "disconnect"
	TypeEcho       Type = "echo"
)

// Inbound frame types.
const (
	TypeStatus Type = "status"
	TypePhrase Type = "phrase"
	TypeSpeech Type = "speech"
	TypeUsers  Type = "users"
	TypeEnd    Type = "end"
	TypeError  Type = "error"
)

// Message is a decoded inbound frame.
type Message interface {
	Kind() Type
}

type envelope struct {
	Type Type `json:"type"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var msg Message
	switch env.Type {
	case TypeStatus:
		msg = &Status{}
	case TypePhrase:
		msg = &Phrase{}
	case TypeSpeech:
		msg = &Speech{}
	case TypeUsers:
		msg = &Users{}
	case TypeEnd:
		return &End{}, nil
	case TypeError:
		msg = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// Encode marshals an outbound frame.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status acknowledges (or rejects) a connect request.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (*Status) Kind() Type { return TypeStatus }

// Phrase is a transcript entry, possibly a partial revision.
type Phrase struct {
	PhraseID               string `json:"phraseId"`
	SpeakerID              string `json:"speakerId"`
	Name                   string `json:"name,omitempty"`
	TranslatedText         string `json:"translatedText"`
	TranslatedLanguageCode string `json:"translatedLanguageCode,omitempty"`
	IsFinal                bool   `json:"isFinal,omitempty"`
}

func (*Phrase) Kind() Type { return TypePhrase }

// Speaker returns the display label for the phrase's speaker.
func (p *Phrase) Speaker() string {
	return SpeakerLabel(p.Name, p.SpeakerID)
}

// Speech carries one synthesized audio clip.
type Speech struct {
	PhraseID               string            `json:"phraseId,omitempty"`
	TranslatedLanguageCode string            `json:"translatedLanguageCode,omitempty"`
	SynthesizedSpeech      SynthesizedSpeech `json:"synthesizedSpeech"`
}

func (*Speech) Kind() Type { return TypeSpeech }

// SynthesizedSpeech wraps the encoded audio payload.
type SynthesizedSpeech struct {
	Data ByteArray `json:"data"`
}

// Presenter is one speaker listed in a users frame.
type Presenter struct {
	SpeakerID string `json:"speakerId"`
	Name      string `json:"name,omitempty"`
}

// Label returns the display label for the presenter.
func (p Presenter) Label() string {
	return SpeakerLabel(p.Name, p.SpeakerID)
}

// Users reports who is in the presentation.
type Users struct {
	Presenters []Presenter       `json:"presenters,omitempty"`
	Others     int               `json:"others,omitempty"`
	Attendees  []json.RawMessage `json:"attendees,omitempty"`
}

func (*Users) Kind() Type { return TypeUsers }

// AttendeeCount is the number of listeners besides the presenters.
func (u *Users) AttendeeCount() int {
	return u.Others + len(u.Attendees)
}

// End signals that the presentation is over.
type End struct{}

func (*End) Kind() Type { return TypeEnd }

// Error is a service-side error report.
type Error struct {
	Message string `json:"message"`
}

func (*Error) Kind() Type { return TypeError }

// SpeakerLabel prefers the speaker's name, falling back to the last four
// characters of the speaker id.
func SpeakerLabel(name, speakerID string) string {
	if name != "" {
		return name
	}
	if speakerID == "" {
		return "Speaker"
	}
	r := []rune(speakerID)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return "Speaker " + string(r)
}

// ByteArray decodes binary payloads sent either as a JSON array of byte
// values or as a base64 string.
type ByteArray []byte

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		*b = decoded
		return nil
	case data[0] == '[' && data[len(data)-1] == ']':
		body := bytes.TrimSpace(data[1 : len(data)-1])
		if len(body) == 0 {
			*b = ByteArray{}
			return nil
		}
		out := make([]byte, 0, len(body)/3)
		for _, field := range bytes.Split(body, []byte(",")) {
			v, err := strconv.ParseUint(string(bytes.TrimSpace(field)), 10, 8)
			if err != nil {
				return fmt.Errorf("byte array: %w", err)
			}
			out = append(out, byte(v))
		}
		*b = out
		return nil
	default:
		return fmt.Errorf("byte array: unexpected %q", data[0])
	}
}

// MarshalJSON encodes the payload as an array of byte values, the form the
// service itself sends.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, len(b)*4+2)
	buf = append(buf, '[')
	for i, v := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	buf = append(buf, ']')
	return buf, nil
}

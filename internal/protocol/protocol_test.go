package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Type
		wantErr error
	}{
		{name: "status", input: `{"type":"status","success":true}`, want: TypeStatus},
		{name: "phrase", input: `{"type":"phrase","phraseId":"p1","speakerId":"abcdef","translatedText":"hola","isFinal":true}`, want: TypePhrase},
		{name: "speech", input: `{"type":"speech","synthesizedSpeech":{"data":[82,73,70,70]}}`, want: TypeSpeech},
		{name: "users", input: `{"type":"users","presenters":[{"speakerId":"x1"}],"others":2}`, want: TypeUsers},
		{name: "end", input: `{"type":"end"}`, want: TypeEnd},
		{name: "error", input: `{"type":"error","message":"boom"}`, want: TypeError},
		{name: "unknown", input: `{"type":"sparkle"}`, wantErr: ErrUnknownType},
		{name: "missing type", input: `{"success":true}`, wantErr: ErrMalformed},
		{name: "not json", input: `not json`, wantErr: ErrMalformed},
		{name: "wrong field type", input: `{"type":"status","success":"yes"}`, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if msg.Kind() != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, msg.Kind())
			}
		})
	}
}

func TestDecode_Fields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"speech","phraseId":"p9","translatedLanguageCode":"fr","synthesizedSpeech":{"data":[1, 2 ,255]}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	speech := msg.(*Speech)
	if speech.PhraseID != "p9" || speech.TranslatedLanguageCode != "fr" {
		t.Errorf("Unexpected speech header: %+v", speech)
	}
	if !bytes.Equal(speech.SynthesizedSpeech.Data, []byte{1, 2, 255}) {
		t.Errorf("Unexpected payload: %v", speech.SynthesizedSpeech.Data)
	}

	msg, err = Decode([]byte(`{"type":"users","presenters":[{"speakerId":"abc123456","name":""},{"speakerId":"x","name":"Ana"}],"others":3,"attendees":[{"id":1},{"id":2}]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	users := msg.(*Users)
	if users.AttendeeCount() != 5 {
		t.Errorf("Expected 5 attendees, got %d", users.AttendeeCount())
	}
	if got := users.Presenters[0].Label(); got != "Speaker 3456" {
		t.Errorf("Expected 'Speaker 3456', got %q", got)
	}
	if got := users.Presenters[1].Label(); got != "Ana" {
		t.Errorf("Expected 'Ana', got %q", got)
	}
}

func TestByteArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "array", input: `[0,127,255]`, want: []byte{0, 127, 255}},
		{name: "empty array", input: `[]`, want: []byte{}},
		{name: "base64", input: `"UklGRg=="`, want: []byte("RIFF")},
		{name: "null", input: `null`, want: nil},
		{name: "out of range", input: `[256]`, wantErr: true},
		{name: "bad base64", input: `"!!"`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ByteArray
			err := b.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !bytes.Equal(b, tt.want) || (b == nil) != (tt.want == nil) {
				t.Errorf("Expected %v, got %v", tt.want, b)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame any
		want  string
	}{
		{name: "connect with key", frame: NewConnect("ABCD-1234", "es", "secret"), want: `{"type":"connect","presentationCode":"ABCD-1234","languageCode":"es","accessKey":"secret"}`},
		{name: "connect without key", frame: NewConnect("ABCD-1234", "es", ""), want: `{"type":"connect","presentationCode":"ABCD-1234","languageCode":"es"}`},
		{name: "change", frame: NewChange("de"), want: `{"type":"change","languageCode":"de"}`},
		{name: "voice off", frame: NewVoice(false), want: `{"type":"voice","enabled":false}`},
		{name: "disconnect", frame: NewDisconnect(), want: `{"type":"disconnect"}`},
		{name: "echo", frame: NewEcho(), want: `{"type":"echo"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSpeakerLabel(t *testing.T) {
	tests := []struct {
		name, speakerName, id, want string
	}{
		{"name wins", "Lee", "123456", "Lee"},
		{"last four", "", "123456", "Speaker 3456"},
		{"short id", "", "42", "Speaker 42"},
		{"nothing", "", "", "Speaker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeakerLabel(tt.speakerName, tt.id); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

package main

import (
	"testing"

	"github.com/dgnsrekt/caption-router/internal/config"
	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
)

func TestParsePlayer(t *testing.T) {
	defaults := supervisor.PlayerConfig{Language: "en"}

	tests := []struct {
		name    string
		value   string
		want    supervisor.PlayerConfig
		wantErr bool
	}{
		{"language only", "es", supervisor.PlayerConfig{Language: "es"}, false},
		{"audio", "es/audio", supervisor.PlayerConfig{Language: "es", AudioEnabled: true}, false},
		{"device", "fr@headset", supervisor.PlayerConfig{Language: "fr", DeviceID: "headset"}, false},
		{"audio and device", "de/audio@alsa_output.usb", supervisor.PlayerConfig{Language: "de", DeviceID: "alsa_output.usb", AudioEnabled: true}, false},
		{"default language", "/audio", supervisor.PlayerConfig{Language: "en", AudioEnabled: true}, false},
		{"mute", "it/mute", supervisor.PlayerConfig{Language: "it"}, false},
		{"regional code", "pt-BR", supervisor.PlayerConfig{Language: "pt-BR"}, false},
		{"empty device", "es@", supervisor.PlayerConfig{}, true},
		{"unknown mode", "es/loud", supervisor.PlayerConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePlayer(tt.value, defaults)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %+v", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParsePlayer_MissingLanguage(t *testing.T) {
	if _, err := parsePlayer("/audio", supervisor.PlayerConfig{}); err == nil {
		t.Error("Expected error when neither value nor defaults name a language")
	}
}

func TestInitialPlayers_FlagsWin(t *testing.T) {
	playerFlags = []string{"es", "fr/audio"}
	defer func() { playerFlags = nil }()

	cfg := config.Default()
	got, err := initialPlayers(cfg, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 players, got %d", len(got))
	}
	if !got[1].AudioEnabled {
		t.Error("Expected second player to have audio enabled")
	}
}

func TestInitialPlayers_Defaults(t *testing.T) {
	cfg := config.Default()
	got, err := initialPlayers(cfg, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Language != cfg.Player.Language {
		t.Errorf("Expected one default player, got %+v", got)
	}
}

func TestInitialPlayers_Preset(t *testing.T) {
	p := &preset.Preset{Players: []supervisor.PlayerConfig{
		{Language: "ja", AudioEnabled: true},
		{Language: "ko"},
		{Language: "zh"},
	}}
	got, err := initialPlayers(config.Default(), p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].Language != "ja" {
		t.Errorf("Expected preset players, got %+v", got)
	}
}

func TestResolveSession(t *testing.T) {
	accessKey = ""
	if _, err := resolveSession(nil, nil); err == nil {
		t.Error("Expected error without a session")
	}

	p := &preset.Preset{Session: session.Credentials{Code: "ABCD-1234"}}
	creds, err := resolveSession(nil, p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if creds.Code != "ABCD-1234" {
		t.Errorf("Expected preset session ABCD-1234, got %q", creds.Code)
	}

	creds, err = resolveSession([]string{"WXYZ-9876"}, p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if creds.Code != "WXYZ-9876" {
		t.Errorf("Expected argument to win over preset, got %q", creds.Code)
	}
}

func TestDescribePreset(t *testing.T) {
	p := preset.Preset{
		Session: session.Credentials{Code: "ABCD-1234"},
		Players: []supervisor.PlayerConfig{
			{Language: "es", AudioEnabled: true, DeviceID: "headset"},
			{Language: "fr"},
		},
	}
	want := "ABCD-1234: es (audio @headset), fr"
	if got := describePreset(p); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

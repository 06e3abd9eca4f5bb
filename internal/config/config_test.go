package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

func viperFrom(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoint != "wss://endpoint.wordly.ai/attend" {
		t.Errorf("Unexpected endpoint %q", cfg.Endpoint)
	}
	if cfg.Connection.HandshakeTimeout != 10*time.Second {
		t.Errorf("Expected 10s handshake timeout, got %v", cfg.Connection.HandshakeTimeout)
	}
	if cfg.Backoff.Base != 2*time.Second || cfg.Backoff.Factor != 1.5 || cfg.Backoff.Max != 30*time.Second {
		t.Errorf("Unexpected backoff %+v", cfg.Backoff)
	}
	if cfg.Transcript.MaxEntries != 50 {
		t.Errorf("Expected 50 transcript entries, got %d", cfg.Transcript.MaxEntries)
	}
	if cfg.Player.AudioEnabled {
		t.Error("Expected audio disabled by default")
	}
	if cfg.Audio.StallTimeout != 60*time.Second {
		t.Errorf("Expected 60s stall timeout, got %v", cfg.Audio.StallTimeout)
	}

	// The preset path is expanded.
	home, _ := homedir.Dir()
	if want := filepath.Join(home, ".config/caption-router/presets.yml"); cfg.Presets.File != want {
		t.Errorf("Expected %s, got %s", want, cfg.Presets.File)
	}
}

func TestLoad_Overrides(t *testing.T) {
	v := viperFrom(t, `
endpoint: ws://localhost:9000/attend
connection:
  handshake_timeout: 3s
  heartbeat_interval: 15s
  voice_settle_delay: 500ms
  retry_rejected: true
backoff:
  base: 1s
  factor: 2
  max: 1m
audio:
  backend: EXEC
  command: aplay -q -D {device}
  stall_timeout: 20s
  max_queue: 8
devices:
  static:
    - id: speakers
      label: Speakers
    - id: headset
      label: Headset
transcript:
  max_entries: 200
  archive: /tmp/transcript.jsonl.zst
player:
  language: es
  audio_enabled: true
metrics:
  addr: ":9101"
`)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cc := cfg.ConnectionConfig()
	if cc.URL != "ws://localhost:9000/attend" || cc.HandshakeTimeout != 3*time.Second ||
		cc.VoiceSettleDelay != 500*time.Millisecond || !cc.RetryRejected {
		t.Errorf("Unexpected connection config %+v", cc)
	}
	if cc.Backoff.Delay(3) != 4*time.Second {
		t.Errorf("Expected third delay 4s, got %v", cc.Backoff.Delay(3))
	}
	if cc.Language != "es" {
		t.Errorf("Expected language es, got %s", cc.Language)
	}

	bc := cfg.BackendConfig()
	if bc.Name != "exec" {
		t.Errorf("Expected exec backend, got %s", bc.Name)
	}
	if got := strings.Join(bc.Command, " "); got != "aplay -q -D {device}" {
		t.Errorf("Unexpected command %q", got)
	}

	ec := cfg.EngineConfig()
	if ec.StallTimeout != 20*time.Second || ec.MaxQueue != 8 {
		t.Errorf("Unexpected engine config %+v", ec)
	}

	dir, ok := cfg.Directory().(audio.StaticDirectory)
	if !ok || len(dir) != 2 || dir[1].ID != "headset" {
		t.Errorf("Expected static directory, got %#v", cfg.Directory())
	}

	if cfg.Transcript.MaxEntries != 200 || cfg.Transcript.Archive != "/tmp/transcript.jsonl.zst" {
		t.Errorf("Unexpected transcript config %+v", cfg.Transcript)
	}
	if !cfg.Player.AudioEnabled || cfg.Metrics.Addr != ":9101" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestLoad_CommandList(t *testing.T) {
	v := viperFrom(t, `
audio:
  backend: exec
  command: ["paplay", "--device={device}"]
devices:
  list_command: ["pw-cli", "ls", "Node"]
`)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Audio.Command) != 2 || cfg.Audio.Command[1] != "--device={device}" {
		t.Errorf("Unexpected command %v", cfg.Audio.Command)
	}
	dir, ok := cfg.Directory().(audio.CommandDirectory)
	if !ok || strings.Join(dir.Command, " ") != "pw-cli ls Node" {
		t.Errorf("Expected command directory, got %#v", cfg.Directory())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"http endpoint", func(c *Config) { c.Endpoint = "https://example.com" }, "endpoint"},
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint"},
		{"zero handshake", func(c *Config) { c.Connection.HandshakeTimeout = 0 }, "handshake_timeout"},
		{"zero heartbeat", func(c *Config) { c.Connection.HeartbeatInterval = 0 }, "heartbeat_interval"},
		{"shrinking backoff", func(c *Config) { c.Backoff.Factor = 0.5 }, "backoff.factor"},
		{"cap below base", func(c *Config) { c.Backoff.Max = time.Second }, "backoff.max"},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"exec without command", func(c *Config) { c.Audio.Backend = "exec"; c.Audio.Command = nil }, "audio.command"},
		{"loud volume", func(c *Config) { c.Audio.Volume = 2 }, "audio.volume"},
		{"no stall timeout", func(c *Config) { c.Audio.StallTimeout = 0 }, "stall_timeout"},
		{"tiny transcript", func(c *Config) { c.Transcript.MaxEntries = 0 }, "max_entries"},
		{"no language", func(c *Config) { c.Player.Language = "" }, "player.language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_InvalidFails(t *testing.T) {
	v := viperFrom(t, "backoff:\n  factor: 0.2\n")
	if _, err := Load(v); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	if v.GetString("player.language") != "en" {
		t.Errorf("Expected default language, got %q", v.GetString("player.language"))
	}
	if v.GetDuration("connection.heartbeat_interval") != 30*time.Second {
		t.Errorf("Expected 30s heartbeat, got %v", v.GetDuration("connection.heartbeat_interval"))
	}
	if _, err := Load(v); err != nil {
		t.Errorf("Expected defaults to load, got %v", err)
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("CAPTION_ROUTER_LOG_LEVEL", "debug")
	t.Setenv("CAPTION_ROUTER_LOG_FILE", "/tmp/caption-router.log")

	e, err := ParseEnv()
	if err != nil {
		t.Fatalf("ParseEnv failed: %v", err)
	}
	if e.LogLevel != "debug" || e.LogFile != "/tmp/caption-router.log" {
		t.Errorf("Unexpected env %+v", e)
	}
}

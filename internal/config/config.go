// Package config loads caption-router settings from viper into typed
// configuration and converts them for the packages that use them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Endpoint   string           `yaml:"endpoint"`
	Connection ConnectionConfig `yaml:"connection"`
	Backoff    BackoffConfig    `yaml:"backoff"`
	Audio      AudioConfig      `yaml:"audio"`
	Devices    DevicesConfig    `yaml:"devices"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Player     PlayerDefaults   `yaml:"player"`
	Presets    PresetsConfig    `yaml:"presets"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ConnectionConfig holds session timings.
type ConnectionConfig struct {
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	VoiceSettleDelay  time.Duration `yaml:"voice_settle_delay"`
	RetryRejected     bool          `yaml:"retry_rejected"`
}

// BackoffConfig holds reconnect delays.
type BackoffConfig struct {
	Base   time.Duration `yaml:"base"`
	Factor float64       `yaml:"factor"`
	Max    time.Duration `yaml:"max"`
}

// AudioConfig selects and tunes the playback backend.
type AudioConfig struct {
	Backend      string        `yaml:"backend"`
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	Volume       float64       `yaml:"volume"`
	Command      []string      `yaml:"command"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	MaxQueue     int           `yaml:"max_queue"`
}

// DevicesConfig configures the device directory. A non-empty static list
// wins over the list command.
type DevicesConfig struct {
	ListCommand []string       `yaml:"list_command"`
	Static      []audio.Device `yaml:"static"`
}

// TranscriptConfig bounds transcripts and names the optional archive.
type TranscriptConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	Archive    string `yaml:"archive"`
}

// PlayerDefaults apply to players added without explicit settings.
type PlayerDefaults struct {
	Language     string `yaml:"language"`
	AudioEnabled bool   `yaml:"audio_enabled"`
}

// PresetsConfig locates the preset file.
type PresetsConfig struct {
	File string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Env holds settings read only from the environment.
type Env struct {
	LogLevel string `env:"CAPTION_ROUTER_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"CAPTION_ROUTER_LOG_FILE"`
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

// Default returns the built-in configuration.
func Default() Config {
	cc := connection.DefaultConfig()
	return Config{
		Endpoint: connection.DefaultEndpoint,
		Connection: ConnectionConfig{
			HandshakeTimeout:  cc.HandshakeTimeout,
			HeartbeatInterval: cc.HeartbeatInterval,
			VoiceSettleDelay:  cc.VoiceSettleDelay,
		},
		Backoff: BackoffConfig{
			Base:   cc.Backoff.Base,
			Factor: cc.Backoff.Factor,
			Max:    cc.Backoff.Max,
		},
		Audio: AudioConfig{
			Backend:      "oto",
			SampleRate:   audio.DefaultOtoConfig().SampleRate,
			Channels:     audio.DefaultOtoConfig().Channels,
			Volume:       audio.DefaultOtoConfig().Volume,
			Command:      audio.DefaultExecCommand,
			StallTimeout: audio.DefaultStallTimeout,
		},
		Devices: DevicesConfig{
			ListCommand: audio.DefaultListCommand,
		},
		Transcript: TranscriptConfig{
			MaxEntries: transcript.DefaultMaxEntries,
		},
		Player: PlayerDefaults{
			Language: "en",
		},
		Presets: PresetsConfig{
			File: "~/.config/caption-router/presets.yml",
		},
	}
}

// SetDefaults registers Default() with v so every key shows up in
// AllSettings and environment overrides.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("connection.handshake_timeout", d.Connection.HandshakeTimeout)
	v.SetDefault("connection.heartbeat_interval", d.Connection.HeartbeatInterval)
	v.SetDefault("connection.voice_settle_delay", d.Connection.VoiceSettleDelay)
	v.SetDefault("connection.retry_rejected", d.Connection.RetryRejected)
	v.SetDefault("backoff.base", d.Backoff.Base)
	v.SetDefault("backoff.factor", d.Backoff.Factor)
	v.SetDefault("backoff.max", d.Backoff.Max)
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.stall_timeout", d.Audio.StallTimeout)
	v.SetDefault("transcript.max_entries", d.Transcript.MaxEntries)
	v.SetDefault("player.language", d.Player.Language)
	v.SetDefault("player.audio_enabled", d.Player.AudioEnabled)
	v.SetDefault("presets.file", d.Presets.File)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v.IsSet("endpoint") {
		cfg.Endpoint = v.GetString("endpoint")
	}

	// Connection settings
	if v.IsSet("connection.handshake_timeout") {
		cfg.Connection.HandshakeTimeout = v.GetDuration("connection.handshake_timeout")
	}
	if v.IsSet("connection.heartbeat_interval") {
		cfg.Connection.HeartbeatInterval = v.GetDuration("connection.heartbeat_interval")
	}
	if v.IsSet("connection.voice_settle_delay") {
		cfg.Connection.VoiceSettleDelay = v.GetDuration("connection.voice_settle_delay")
	}
	if v.IsSet("connection.retry_rejected") {
		cfg.Connection.RetryRejected = v.GetBool("connection.retry_rejected")
	}

	// Backoff settings
	if v.IsSet("backoff.base") {
		cfg.Backoff.Base = v.GetDuration("backoff.base")
	}
	if v.IsSet("backoff.factor") {
		cfg.Backoff.Factor = v.GetFloat64("backoff.factor")
	}
	if v.IsSet("backoff.max") {
		cfg.Backoff.Max = v.GetDuration("backoff.max")
	}

	// Audio settings
	if v.IsSet("audio.backend") {
		cfg.Audio.Backend = strings.ToLower(v.GetString("audio.backend"))
	}
	if v.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.channels") {
		cfg.Audio.Channels = v.GetInt("audio.channels")
	}
	if v.IsSet("audio.volume") {
		cfg.Audio.Volume = v.GetFloat64("audio.volume")
	}
	if v.IsSet("audio.command") {
		cfg.Audio.Command = splitCommand(v.Get("audio.command"))
	}
	if v.IsSet("audio.stall_timeout") {
		cfg.Audio.StallTimeout = v.GetDuration("audio.stall_timeout")
	}
	if v.IsSet("audio.max_queue") {
		cfg.Audio.MaxQueue = v.GetInt("audio.max_queue")
	}

	// Device directory
	if v.IsSet("devices.list_command") {
		cfg.Devices.ListCommand = splitCommand(v.Get("devices.list_command"))
	}
	if v.IsSet("devices.static") {
		if err := v.UnmarshalKey("devices.static", &cfg.Devices.Static); err != nil {
			return cfg, fmt.Errorf("%w: devices.static: %v", ErrInvalidConfig, err)
		}
	}

	// Transcript
	if v.IsSet("transcript.max_entries") {
		cfg.Transcript.MaxEntries = v.GetInt("transcript.max_entries")
	}
	if v.IsSet("transcript.archive") {
		cfg.Transcript.Archive = v.GetString("transcript.archive")
	}

	// Player defaults
	if v.IsSet("player.language") {
		cfg.Player.Language = v.GetString("player.language")
	}
	if v.IsSet("player.audio_enabled") {
		cfg.Player.AudioEnabled = v.GetBool("player.audio_enabled")
	}

	if v.IsSet("presets.file") {
		cfg.Presets.File = v.GetString("presets.file")
	}
	if v.IsSet("metrics.addr") {
		cfg.Metrics.Addr = v.GetString("metrics.addr")
	}

	var err error
	if cfg.Transcript.Archive, err = expand(cfg.Transcript.Archive); err != nil {
		return cfg, err
	}
	if cfg.Presets.File, err = expand(cfg.Presets.File); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// splitCommand accepts a command as a list or as one space separated
// string.
func splitCommand(raw any) []string {
	switch c := raw.(type) {
	case string:
		return strings.Fields(c)
	case []string:
		return c
	case []any:
		out := make([]string, 0, len(c))
		for _, v := range c {
			out = append(out, fmt.Sprint(v))
		}
		return out
	}
	return nil
}

func expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("%w: expand %q: %v", ErrInvalidConfig, path, err)
	}
	return p, nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("%w: endpoint must be a ws:// or wss:// URL, got %q", ErrInvalidConfig, c.Endpoint)
	}

	if c.Connection.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: connection.handshake_timeout must be positive", ErrInvalidConfig)
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: connection.heartbeat_interval must be positive", ErrInvalidConfig)
	}
	if c.Connection.VoiceSettleDelay < 0 {
		return fmt.Errorf("%w: connection.voice_settle_delay must not be negative", ErrInvalidConfig)
	}

	if c.Backoff.Base <= 0 {
		return fmt.Errorf("%w: backoff.base must be positive", ErrInvalidConfig)
	}
	if c.Backoff.Factor < 1 {
		return fmt.Errorf("%w: backoff.factor must be at least 1, got %.2f", ErrInvalidConfig, c.Backoff.Factor)
	}
	if c.Backoff.Max < c.Backoff.Base {
		return fmt.Errorf("%w: backoff.max must not be below backoff.base", ErrInvalidConfig)
	}

	switch c.Audio.Backend {
	case "oto", "exec", "null":
	default:
		return fmt.Errorf("%w: audio.backend must be oto, exec or null, got %q", ErrInvalidConfig, c.Audio.Backend)
	}
	if c.Audio.Backend == "exec" && len(c.Audio.Command) == 0 {
		return fmt.Errorf("%w: audio.command is required for the exec backend", ErrInvalidConfig)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("%w: audio.volume must be between 0.0 and 1.0, got %.2f", ErrInvalidConfig, c.Audio.Volume)
	}
	if c.Audio.StallTimeout <= 0 {
		return fmt.Errorf("%w: audio.stall_timeout must be positive", ErrInvalidConfig)
	}
	if c.Audio.MaxQueue < 0 {
		return fmt.Errorf("%w: audio.max_queue must not be negative", ErrInvalidConfig)
	}

	if c.Transcript.MaxEntries < 1 || c.Transcript.MaxEntries > 10000 {
		return fmt.Errorf("%w: transcript.max_entries must be between 1 and 10000, got %d", ErrInvalidConfig, c.Transcript.MaxEntries)
	}
	if c.Player.Language == "" {
		return fmt.Errorf("%w: player.language is required", ErrInvalidConfig)
	}
	return nil
}

// ConnectionConfig returns the session settings for connection.Manager.
func (c Config) ConnectionConfig() connection.Config {
	return connection.Config{
		URL:               c.Endpoint,
		Language:          c.Player.Language,
		HandshakeTimeout:  c.Connection.HandshakeTimeout,
		HeartbeatInterval: c.Connection.HeartbeatInterval,
		VoiceSettleDelay:  c.Connection.VoiceSettleDelay,
		RetryRejected:     c.Connection.RetryRejected,
		Backoff: connection.Backoff{
			Base:   c.Backoff.Base,
			Factor: c.Backoff.Factor,
			Max:    c.Backoff.Max,
		},
	}
}

// BackendConfig returns the settings for audio.NewBackend.
func (c Config) BackendConfig() audio.BackendConfig {
	return audio.BackendConfig{
		Name:       c.Audio.Backend,
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		Volume:     c.Audio.Volume,
		Command:    c.Audio.Command,
	}
}

// EngineConfig returns the per-player engine limits.
func (c Config) EngineConfig() audio.EngineConfig {
	return audio.EngineConfig{
		StallTimeout: c.Audio.StallTimeout,
		MaxQueue:     c.Audio.MaxQueue,
	}
}

// Directory returns the configured device directory.
func (c Config) Directory() audio.Directory {
	if len(c.Devices.Static) > 0 {
		return audio.StaticDirectory(c.Devices.Static)
	}
	return audio.CommandDirectory{Command: c.Devices.ListCommand}
}

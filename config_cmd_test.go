package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/caption-router/internal/config"
	"github.com/spf13/viper"
)

func TestDefaultConfigLoads(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("Failed to parse default config: %v", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Default config does not validate: %v", err)
	}

	want := config.Default()
	if cfg.Endpoint != want.Endpoint {
		t.Errorf("Expected endpoint %q, got %q", want.Endpoint, cfg.Endpoint)
	}
	if cfg.Backoff != want.Backoff {
		t.Errorf("Expected backoff %+v, got %+v", want.Backoff, cfg.Backoff)
	}
	if cfg.Audio.StallTimeout != want.Audio.StallTimeout {
		t.Errorf("Expected stall timeout %v, got %v", want.Audio.StallTimeout, cfg.Audio.StallTimeout)
	}
	if cfg.Player != want.Player {
		t.Errorf("Expected player defaults %+v, got %+v", want.Player, cfg.Player)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	old := configFile
	defer func() { configFile = old }()

	configFile = filepath.Join(t.TempDir(), "nested", "caption-router.yml")
	if err := ensureConfigFile(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("Config file was not written: %v", err)
	}
	if string(data) != defaultConfig {
		t.Error("Expected the default config to be written")
	}

	configFile = filepath.Join(t.TempDir(), "caption-router.toml")
	if err := ensureConfigFile(); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}

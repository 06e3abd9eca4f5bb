package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# attendee websocket of the translation service
endpoint: "wss://endpoint.wordly.ai/attend"

connection:
  # give up on a handshake after this long
  handshake_timeout: "10s"
  # ping interval while connected
  heartbeat_interval: "30s"
  # wait before re-requesting a voice after a language change
  voice_settle_delay: "1s"
  # keep retrying when the service rejects the session
  retry_rejected: false

# reconnect delays: base * factor^(attempt-1), capped at max
backoff:
  base: "2s"
  factor: 1.5
  max: "30s"

audio:
  # oto, exec or null
  backend: "oto"
  sample_rate: 44100
  channels: 1
  # volume level (0.0 to 1.0)
  volume: 1.0
  # exec backend only; {device} is replaced with the player's device
  command: ["paplay", "--device={device}"]
  # stop a clip that plays longer than this
  stall_timeout: "60s"
  # clips waiting per player, 0 for unbounded
  max_queue: 0

devices:
  # command listing output devices, one per line
  list_command: ["pactl", "list", "short", "sinks"]
  # a fixed list wins over list_command
  # static:
  #   - id: "alsa_output.usb-headset"
  #     label: "USB headset"

transcript:
  # entries kept per player
  max_entries: 50
  # append final phrases to a JSON lines file (.zst to compress)
  # archive: "~/caption-router/transcripts.jsonl.zst"

# settings for players added without explicit ones
player:
  language: "en"
  audio_enabled: false

presets:
  file: "~/.config/caption-router/presets.yml"

metrics:
  # serve Prometheus metrics, e.g. ":9090"
  addr: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the caption-router config file",
	Long:    paragraph(fmt.Sprintf("\n%s the caption-router config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("caption-router config\ncaption-router config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("caption-router", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

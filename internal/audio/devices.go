package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultDeviceLabel names the system default output.
const DefaultDeviceLabel = "System default"

// Device is one audio output. An empty ID is the system default.
type Device struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Directory lists available output devices. The system default is always
// the first entry.
type Directory interface {
	List(ctx context.Context) ([]Device, error)
}

// StaticDirectory serves a fixed device list.
type StaticDirectory []Device

// List implements Directory.
func (d StaticDirectory) List(context.Context) ([]Device, error) {
	return withDefault(d), nil
}

// CommandDirectory lists sinks by running a command whose output has one
// device per line, tab separated, with the device name in the second
// column. pactl list short sinks has this shape.
type CommandDirectory struct {
	Command []string
}

// DefaultListCommand lists PulseAudio and PipeWire sinks.
var DefaultListCommand = []string{"pactl", "list", "short", "sinks"}

// List implements Directory.
func (d CommandDirectory) List(ctx context.Context) ([]Device, error) {
	command := d.Command
	if len(command) == 0 {
		command = DefaultListCommand
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return withDefault(nil), fmt.Errorf("list devices: %w: %s", err, msg)
		}
		return withDefault(nil), fmt.Errorf("list devices: %w", err)
	}

	return withDefault(ParseSinkList(out)), nil
}

// ParseSinkList parses `pactl list short sinks` output.
func ParseSinkList(out []byte) []Device {
	var devices []Device
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(fields) < 2 || fields[1] == "" {
			continue
		}
		label := fields[1]
		if len(fields) >= 4 && fields[3] != "" {
			label = fmt.Sprintf("%s (%s)", fields[1], fields[3])
		}
		devices = append(devices, Device{ID: fields[1], Label: label})
	}
	return devices
}

func withDefault(devices []Device) []Device {
	out := make([]Device, 0, len(devices)+1)
	out = append(out, Device{ID: "", Label: DefaultDeviceLabel})
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// LabelOf returns the label for id, or id itself when unknown.
func LabelOf(devices []Device, id string) string {
	for _, d := range devices {
		if d.ID == id {
			return d.Label
		}
	}
	if id == "" {
		return DefaultDeviceLabel
	}
	return id
}

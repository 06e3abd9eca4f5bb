package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
)

// stateColor returns the color for a connection state.
func stateColor(s connection.State) lipgloss.Color {
	switch s {
	case connection.StateConnected:
		return lipgloss.Color("#00FF00") // Green
	case connection.StateConnecting:
		return lipgloss.Color("#00AAFF") // Blue
	case connection.StateDisconnected:
		return lipgloss.Color("#FF8800") // Orange
	case connection.StateError:
		return lipgloss.Color("#FF0000") // Red
	case connection.StateEnded:
		return lipgloss.Color("#888888") // Gray
	default:
		return lipgloss.Color("#666666") // Dark gray
	}
}

// stateIcon returns an icon for a connection state. Connecting players
// show the spinner frame instead.
func stateIcon(s connection.State, spin string) string {
	switch s {
	case connection.StateConnected:
		return "●"
	case connection.StateConnecting:
		if spin != "" {
			return spin
		}
		return "⟳"
	case connection.StateDisconnected:
		return "◌"
	case connection.StateError:
		return "✗"
	case connection.StateEnded:
		return "■"
	default:
		return "○"
	}
}

// compactStatus renders the connection badge of one player.
func compactStatus(info supervisor.PlayerInfo, spin string) string {
	style := lipgloss.NewStyle().Foreground(stateColor(info.State))
	status := style.Render(fmt.Sprintf("%s %s", stateIcon(info.State, spin), info.State))

	if info.Attempts > 0 && info.State != connection.StateConnected {
		counterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += counterStyle.Render(fmt.Sprintf(" retry %d", info.Attempts))
	}
	return status
}

// audioStatus describes a player's audio flag, device and queue.
func audioStatus(info supervisor.PlayerInfo, devices []audio.Device) string {
	if !info.Config.AudioEnabled {
		return subtleStyle("audio off")
	}

	parts := []string{"audio on", audio.LabelOf(devices, info.Config.DeviceID)}
	if info.Playing {
		parts[0] = playingStyle("♪ playing")
	}
	if info.QueueLen > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", info.QueueLen))
	}
	return strings.Join(parts, " · ")
}

// playerLine renders one row of the player list.
func playerLine(info supervisor.PlayerInfo, name string, devices []audio.Device, spin string, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = selectedStyle("▸ ")
	}

	line := fmt.Sprintf("%s%-15s %-22s %s  %s",
		cursor,
		info.ID,
		fmt.Sprintf("%s (%s)", name, info.Config.Language),
		compactStatus(info, spin),
		audioStatus(info, devices),
	)
	if !info.LastActivity.IsZero() {
		line += subtleStyle("  " + humanize.Time(info.LastActivity))
	}
	if info.State == connection.StateError && info.StateMessage != "" {
		line += errorStyle("  " + info.StateMessage)
	}

	if width > 0 {
		line = truncate.StringWithTail(line, uint(width), ellipsis) //nolint:gosec
	}
	return line
}

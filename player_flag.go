package main

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/caption-router/internal/supervisor"
)

// parsePlayer reads a --player value of the form LANG[/audio|/mute][@DEVICE].
// Parts left out come from defaults.
func parsePlayer(value string, defaults supervisor.PlayerConfig) (supervisor.PlayerConfig, error) {
	pc := defaults
	rest := strings.TrimSpace(value)

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		pc.DeviceID = strings.TrimSpace(rest[i+1:])
		rest = rest[:i]
		if pc.DeviceID == "" {
			return pc, fmt.Errorf("invalid player %q: empty device after @", value)
		}
	}

	if i := strings.Index(rest, "/"); i >= 0 {
		switch mode := strings.ToLower(strings.TrimSpace(rest[i+1:])); mode {
		case "audio", "on":
			pc.AudioEnabled = true
		case "mute", "off":
			pc.AudioEnabled = false
		default:
			return pc, fmt.Errorf("invalid player %q: unknown mode %q (use audio or mute)", value, mode)
		}
		rest = rest[:i]
	}

	if lang := strings.TrimSpace(rest); lang != "" {
		pc.Language = lang
	}
	if pc.Language == "" {
		return pc, fmt.Errorf("invalid player %q: missing language", value)
	}
	return pc, nil
}

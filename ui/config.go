package ui

import (
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
)

// Config contains TUI-specific configuration.
type Config struct {
	Session  session.Credentials
	Catalog  *languages.Catalog
	Devices  audio.Directory
	Presets  *preset.Store // nil disables preset keys
	Defaults supervisor.PlayerConfig

	EnableMouse bool
}

// Package main provides the entry point for the caption-router CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/config"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/dgnsrekt/caption-router/internal/metrics"
	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	"github.com/dgnsrekt/caption-router/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	accessKey   string
	playerFlags []string
	presetName  string
	watch       bool
	plain       bool
	mouse       bool
	debug       bool

	rootCmd = &cobra.Command{
		Use:   "caption-router [SESSION|WEBLINK]",
		Short: "Route a live translated presentation to several listeners",
		Long: paragraph(
			fmt.Sprintf("\nRoute a live translated presentation to %s, each with its own language and audio output.", keyword("any number of players")),
		),
		Example: paragraph(strings.Join([]string{
			"caption-router ABCD-1234 --player es/audio@headset --player fr",
			"caption-router https://attend.wordly.ai/join/ABCD-1234?key=secret",
			"caption-router --preset lobby --watch",
		}, "\n")),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	plain = viper.GetBool("plain")
	mouse = viper.GetBool("mouse")
	debug = viper.GetBool("debug")

	// The TUI needs a terminal; fall back to log output otherwise.
	if !plain && !term.IsTerminal(int(os.Stdout.Fd())) {
		plain = true
	}
	return nil
}

// loadConfig loads and validates the configuration file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return cfg, fmt.Errorf("unable to load configuration: %w", err)
	}
	return cfg, nil
}

// resolveSession picks credentials from the argument, falling back to the
// preset's saved session.
func resolveSession(args []string, p *preset.Preset) (session.Credentials, error) {
	if len(args) > 0 {
		return session.Parse(args[0], accessKey)
	}
	if p != nil && p.Session.Code != "" {
		creds := p.Session
		if accessKey != "" {
			creds.AccessKey = accessKey
		}
		return creds, creds.Validate()
	}
	return session.Credentials{}, errors.New("a session code or weblink is required")
}

// initialPlayers decides which players to open on start: --player flags
// win over the preset, and with neither one player uses the defaults.
func initialPlayers(cfg config.Config, p *preset.Preset) ([]supervisor.PlayerConfig, error) {
	defaults := supervisor.PlayerConfig{Language: cfg.Player.Language, AudioEnabled: cfg.Player.AudioEnabled}

	if len(playerFlags) > 0 {
		players := make([]supervisor.PlayerConfig, 0, len(playerFlags))
		for _, f := range playerFlags {
			pc, err := parsePlayer(f, defaults)
			if err != nil {
				return nil, err
			}
			players = append(players, pc)
		}
		return players, nil
	}
	if p != nil && len(p.Players) > 0 {
		return p.Players, nil
	}
	return []supervisor.PlayerConfig{defaults}, nil
}

func execute(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	closer, err := setupLog(plain, debug)
	if err != nil {
		return err
	}
	defer func() { _ = closer() }()

	store := preset.NewStore(cfg.Presets.File)
	var selected *preset.Preset
	if presetName != "" {
		p, err := store.Get(presetName)
		if err != nil {
			return err
		}
		selected = &p
	}

	creds, err := resolveSession(args, selected)
	if err != nil {
		return err
	}
	if selected != nil && !selected.Matches(creds.Code) {
		log.Warn("Preset is for a different session", "preset", presetName, "saved", selected.Session.Code, "session", creds.Code)
	}

	players, err := initialPlayers(cfg, selected)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return run(ctx, cfg, creds, players, store)
}

func run(ctx context.Context, cfg config.Config, creds session.Credentials, players []supervisor.PlayerConfig, store *preset.Store) error {
	backend, err := audio.NewBackend(cfg.BackendConfig())
	if err != nil {
		log.Warn("Audio backend unavailable, playing silently", "backend", cfg.Audio.Backend, "err", err)
		backend = audio.NewNullBackend()
	}

	var archive *transcript.Archive
	if cfg.Transcript.Archive != "" {
		archive, err = transcript.OpenArchive(cfg.Transcript.Archive)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()
	}

	catalog := languages.Default()
	sup, err := supervisor.New(supervisor.Options{
		Credentials:   creds,
		Transport:     connection.NewWebsocketTransport(cfg.Connection.HandshakeTimeout),
		Connection:    cfg.ConnectionConfig(),
		Backend:       backend,
		Engine:        cfg.EngineConfig(),
		Catalog:       catalog,
		TranscriptMax: cfg.Transcript.MaxEntries,
		Archive:       archive,
		LogTranscript: plain,
		Logger:        log.Default(),
	})
	if err != nil {
		return err
	}
	defer sup.Close()

	if cfg.Metrics.Addr != "" {
		collector := metrics.New()
		defer collector.Attach(sup.Bus())()
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Addr, log.Default()); err != nil {
				log.Error("Metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	if _, err := sup.LoadPreset(players); err != nil {
		return err
	}

	if watch && presetName != "" {
		err := store.Watch(ctx, 0, log.Default(), func(all map[string]preset.Preset) {
			p, ok := all[presetName]
			if !ok {
				log.Warn("Watched preset was removed", "preset", presetName)
				return
			}
			if _, err := sup.LoadPreset(p.Players); err != nil {
				log.Error("Could not apply preset", "preset", presetName, "err", err)
			}
		})
		if err != nil {
			return err
		}
	}

	if plain {
		return runPlain(ctx, sup)
	}
	return runTUI(ctx, cfg, creds, sup, store, catalog)
}

// runPlain logs transcripts and status changes until interrupted.
func runPlain(ctx context.Context, sup *supervisor.Supervisor) error {
	defer sup.Subscribe(func(e supervisor.StatusChangedEvent) {
		log.Info("Status", "player", e.PlayerID, "state", e.State, "message", e.Message)
	})()
	defer sup.Subscribe(func(e supervisor.PlayerErrorEvent) {
		log.Warn("Player error", "player", e.Err.PlayerID, "err", e.Err)
	})()

	<-ctx.Done()
	log.Info("Shutting down", "players", sup.Len())
	return nil
}

func runTUI(ctx context.Context, cfg config.Config, creds session.Credentials, sup *supervisor.Supervisor, store *preset.Store, catalog *languages.Catalog) error {
	p := ui.NewProgram(ui.Config{
		Session:     creds,
		Catalog:     catalog,
		Devices:     cfg.Directory(),
		Presets:     store,
		Defaults:    supervisor.PlayerConfig{Language: cfg.Player.Language, AudioEnabled: cfg.Player.AudioEnabled},
		EnableMouse: mouse,
	}, sup)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.Flags().StringVarP(&accessKey, "key", "k", "", "access key for protected sessions")
	rootCmd.Flags().StringArrayVarP(&playerFlags, "player", "p", nil, "add a player as LANG[/audio][@DEVICE] (repeatable)")
	rootCmd.Flags().StringVar(&presetName, "preset", "", "open the players of a saved preset")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-apply the preset when the preset file changes")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "log transcripts instead of starting the TUI")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("plain", rootCmd.Flags().Lookup("plain"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.Flags().Lookup("metrics-addr"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, devicesCmd, languagesCmd, presetsCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "caption-router")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "caption-router")}, dirs...)
	}

	if c := os.Getenv("CAPTION_ROUTER_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("caption-router")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("caption_router")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "caption-router.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

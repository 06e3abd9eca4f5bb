package main

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "Manage saved player layouts",
		Long:  paragraph(fmt.Sprintf("\n%s named sets of players. Open one with --preset NAME.", keyword("Manage"))),
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	presetsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	presetsShowCmd = &cobra.Command{
		Use:   "show NAME",
		Short: "Print a preset as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := presetStore()
			if err != nil {
				return err
			}
			p, err := store.Get(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(p)
			if err != nil {
				return fmt.Errorf("unable to encode preset: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	presetsSaveCmd = &cobra.Command{
		Use:     "save NAME [SESSION|WEBLINK]",
		Short:   "Save a preset from --player flags",
		Example: paragraph("caption-router presets save lobby ABCD-1234 --player es/audio@headset --player fr"),
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(playerFlags) == 0 {
				return fmt.Errorf("at least one --player is required")
			}
			players, err := initialPlayers(cfg, nil)
			if err != nil {
				return err
			}

			p := preset.Preset{Players: players}
			if len(args) > 1 {
				if p.Session, err = session.Parse(args[1], accessKey); err != nil {
					return err
				}
			}

			store := preset.NewStore(cfg.Presets.File)
			if err := store.Save(args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %s to %s\n", keyword(strings.TrimSpace(args[0])), store.Path())
			return nil
		},
	}

	presetsDeleteCmd = &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a preset",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := presetStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %s\n", keyword(args[0]))
			return nil
		},
	}
)

func presetStore() (*preset.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return preset.NewStore(cfg.Presets.File), nil
}

func listPresets(cmd *cobra.Command, _ []string) error {
	store, err := presetStore()
	if err != nil {
		return err
	}
	all, err := store.All()
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(w, "No presets in %s\n", store.Path())
		return nil
	}
	for _, name := range names {
		fmt.Fprintf(w, "%s  %s\n", keyword(name), describePreset(all[name]))
	}
	return nil
}

// describePreset summarizes a preset on one line, e.g.
// "ABCD-1234: es (audio), fr".
func describePreset(p preset.Preset) string {
	parts := make([]string, 0, len(p.Players))
	for _, pc := range p.Players {
		parts = append(parts, describePlayer(pc))
	}
	s := strings.Join(parts, ", ")
	if p.Session.Code != "" {
		s = p.Session.Code + ": " + s
	}
	return s
}

func describePlayer(pc supervisor.PlayerConfig) string {
	s := pc.Language
	if pc.AudioEnabled {
		s += " (audio"
		if pc.DeviceID != "" {
			s += " @" + pc.DeviceID
		}
		s += ")"
	}
	return s
}

func init() {
	presetsSaveCmd.Flags().StringArrayVarP(&playerFlags, "player", "p", nil, "add a player as LANG[/audio][@DEVICE] (repeatable)")
	presetsSaveCmd.Flags().StringVarP(&accessKey, "key", "k", "", "access key for protected sessions")
	presetsCmd.AddCommand(presetsListCmd, presetsShowCmd, presetsSaveCmd, presetsDeleteCmd)
}

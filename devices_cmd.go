package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	Long:  paragraph(fmt.Sprintf("\n%s the output devices a player can route audio to. Use the id with --player LANG/audio@ID.", keyword("List"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		devices, err := cfg.Directory().List(ctx)
		if err != nil {
			log.Warn("Could not list devices", "err", err)
		}

		w := cmd.OutOrStdout()
		for _, d := range devices {
			id := d.ID
			if id == "" {
				id = "(default)"
			}
			fmt.Fprintf(w, "%s  %s\n", padRight(id, 40), d.Label)
		}
		return nil
	},
}

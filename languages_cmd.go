package main

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:     "languages [QUERY]",
	Aliases: []string{"langs"},
	Short:   "List or search the supported languages",
	Example: paragraph("caption-router languages\ncaption-router languages portug"),
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := languages.Default()
		found := catalog.Search(strings.Join(args, " "))
		if len(found) == 0 {
			return fmt.Errorf("no language matches %q", strings.Join(args, " "))
		}

		width := 0
		for _, l := range found {
			width = max(width, runewidth.StringWidth(l.Code))
		}
		w := cmd.OutOrStdout()
		for _, l := range found {
			fmt.Fprintf(w, "%s  %s\n", keyword(padRight(l.Code, width)), l.Name)
		}
		return nil
	},
}

// padRight pads s with spaces to width terminal cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

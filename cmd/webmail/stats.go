package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/webmail/internal/theme"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show counters for the stored messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.user(ctx)
			if err != nil {
				return err
			}

			stats, err := a.store.Stats(ctx, user.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.StatsPanel(user.Email, stats))
			if user.LastSync != nil {
				fmt.Fprintln(out, theme.HelpStyle.Render("Last synced "+user.LastSync.Local().Format("2006-01-02 15:04")))
			} else {
				fmt.Fprintln(out, theme.HelpStyle.Render("Never synced"))
			}
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/webmail/internal/sync"
	"github.com/nhle/webmail/internal/theme"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var syncOpts sync.SyncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the newest messages into the local store",
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

			poller := a.poller(a.engine(), user)
			res, err := poller.RunOnce(ctx, syncOpts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), theme.ErrorStyle.Render("Sync failed"))
				return err
			}
			state := poller.Statuses()[0].State.String()

			fmt.Fprintln(cmd.OutOrStdout(), theme.Panel(user.Email, []theme.Row{
				{Label: "Mailbox size", Value: fmt.Sprint(res.Total)},
				{Label: "Synced", Value: fmt.Sprint(res.Synced)},
				{Label: "New", Value: fmt.Sprint(res.Created)},
				{Label: "Updated", Value: fmt.Sprint(res.Updated)},
				{Label: "State", Value: theme.StateStyle(state).Render(state)},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&syncOpts.Mailbox, "mailbox", "", "Folder to sync (defaults to sync.mailbox)")
	cmd.Flags().IntVar(&syncOpts.Limit, "limit", 0, "Number of newest messages to fetch (defaults to sync.limit)")
	cmd.Flags().IntVar(&syncOpts.Offset, "offset", 0, "Skip this many of the newest messages")
	return cmd
}

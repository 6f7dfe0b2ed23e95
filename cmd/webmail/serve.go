package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/webmail/internal/api"
	"github.com/nhle/webmail/internal/theme"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and poll the mailbox in the background",
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

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			engine := a.engine()
			poller := a.poller(engine, user)
			poller.Start()
			defer poller.Stop()

			srv := api.New(api.Config{
				Store:       a.store,
				Syncer:      poller,
				Deleter:     engine,
				Credentials: a.creds,
				User:        *user,
				FrontendURL: a.cfg.Server.FrontendURL,
				Log:         a.log,
			})

			poll := "off"
			if a.cfg.Sync.PollIntervalSec > 0 {
				poll = fmt.Sprintf("every %ds", a.cfg.Sync.PollIntervalSec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.Panel("Webmail API "+api.Version, []theme.Row{
				{Label: "Listening", Value: addr},
				{Label: "Account", Value: user.Email},
				{Label: "Mailbox", Value: a.cfg.Sync.Mailbox},
				{Label: "Database", Value: a.cfg.Store.Driver},
				{Label: "Frontend", Value: a.cfg.Server.FrontendURL},
				{Label: "Polling", Value: poll},
			}))

			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

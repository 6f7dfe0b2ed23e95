package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/theme"
)

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var lookup bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an OAuth token for the mailbox account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			address := a.cfg.Account.Address
			name := a.cfg.Account.Name

			var accessToken, refreshToken string
			err = huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Access token").
						EchoMode(huh.EchoModePassword).
						Value(&accessToken).
						Validate(nonEmpty),
					huh.NewInput().
						Title("Refresh token").
						Description("Optional; refreshing needs oauth.client_id").
						EchoMode(huh.EchoModePassword).
						Value(&refreshToken),
				),
			).RunWithContext(ctx)
			if err != nil {
				return err
			}
			tok := &oauth2.Token{
				AccessToken:  strings.TrimSpace(accessToken),
				RefreshToken: strings.TrimSpace(refreshToken),
				TokenType:    "Bearer",
			}

			if lookup {
				gotAddress, gotName, err := credential.LookupAddress(ctx, oauth2.StaticTokenSource(tok))
				if err != nil {
					a.log.WithError(err).Warn("looking up account address")
				} else {
					address = gotAddress
					if gotName != "" {
						name = gotName
					}
				}
			}

			err = huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Email address").
						Value(&address).
						Validate(nonEmpty),
					huh.NewInput().
						Title("Display name").
						Value(&name),
				),
			).RunWithContext(ctx)
			if err != nil {
				return err
			}
			address = strings.TrimSpace(address)

			if err := a.creds.SaveToken(address, tok); err != nil {
				return err
			}

			a.cfg.Account = model.AccountConfig{Address: address, Name: strings.TrimSpace(name)}
			if err := model.SaveConfig(a.cfgPath, a.cfg); err != nil {
				return err
			}
			if _, err := a.user(ctx); err != nil {
				return err
			}

			fmt.Fprintln(out, theme.Panel("Logged in", []theme.Row{
				{Label: "Account", Value: address},
				{Label: "Config", Value: a.cfgPath},
			}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&lookup, "lookup", true, "Resolve the account address from the token")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token for the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Account.Address == "" {
				return errNoAccount
			}
			if err := a.creds.DeleteToken(a.cfg.Account.Address); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed token for "+a.cfg.Account.Address)
			return nil
		},
	}
}

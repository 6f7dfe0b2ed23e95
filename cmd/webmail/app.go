package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/mailbox"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/store"
	"github.com/nhle/webmail/internal/sync"
)

var errNoAccount = errors.New("no account configured; run `webmail login` first")

// app holds the dependencies shared by the commands.
type app struct {
	cfgPath string
	cfg     *model.AppConfig
	log     *logrus.Logger
	store   store.Store
	ring    keyring.Keyring
	creds   *credential.KeyringProvider
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}

	ring, err := credential.OpenKeyring(cfg.Keyring)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &app{
		cfgPath: opts.configPath,
		cfg:     cfg,
		log:     log,
		store:   s,
		ring:    ring,
		creds:   credential.NewKeyringProvider(ring, credential.GoogleOAuthConfig(cfg.OAuth), log.WithField("component", "credential")),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("closing store")
	}
}

// user returns the local record for the configured account, creating it
// on first use.
func (a *app) user(ctx context.Context) (*model.User, error) {
	if a.cfg.Account.Address == "" {
		return nil, errNoAccount
	}
	u, err := a.store.EnsureUser(ctx, a.cfg.Account.Address, a.cfg.Account.Name)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", a.cfg.Account.Address, err)
	}
	return u, nil
}

func (a *app) engine() *sync.Engine {
	return &sync.Engine{
		Store:       a.store,
		Sessions:    sync.MailboxSessions(mailbox.ConfigFrom(a.cfg.IMAP), a.log.WithField("component", "mailbox")),
		Log:         a.log.WithField("component", "sync"),
		DeleteLimit: a.cfg.Sync.DeleteConcurrency,
		DeleteRate:  a.cfg.Sync.DeleteRatePerSec,
	}
}

func (a *app) poller(engine *sync.Engine, user *model.User) *sync.Poller {
	return sync.NewPoller(engine, a.creds, *user,
		sync.SyncOptions{Mailbox: a.cfg.Sync.Mailbox, Limit: a.cfg.Sync.Limit},
		time.Duration(a.cfg.Sync.PollIntervalSec)*time.Second,
		a.log,
	)
}

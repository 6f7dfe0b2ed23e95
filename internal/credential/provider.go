// Package credential stores OAuth bearer tokens for the mailbox account and
// hands out fresh identities to protocol sessions.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nhle/webmail/internal/model"
)

// Scopes requested for the mailbox account.
var Scopes = []string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Provider resolves the current identity for an account address.
type Provider interface {
	Identity(ctx context.Context, address string) (model.Identity, error)
}

// TokenError reports a missing or unusable token for an account.
type TokenError struct {
	Address string
	Err     error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token for %s: %v", e.Address, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// IsTokenError checks whether an error is (or wraps) a TokenError.
func IsTokenError(err error) bool {
	var te *TokenError
	return errors.As(err, &te)
}

// ErrNoToken is wrapped by TokenError when nothing is stored for an
// account.
var ErrNoToken = errors.New("no token stored")

// GoogleOAuthConfig returns the OAuth client for cfg, or nil when no
// client ID is configured.
func GoogleOAuthConfig(cfg model.OAuthConfig) *oauth2.Config {
	if cfg.ClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// KeyringProvider keeps tokens in a keyring as JSON under
// "oauth:<address>". Expired tokens are refreshed when a refresh token and
// an OAuth client are available.
type KeyringProvider struct {
	ring  keyring.Keyring
	oauth *oauth2.Config
	log   logrus.FieldLogger
}

// NewKeyringProvider creates a provider over ring. oauthCfg may be nil, in
// which case tokens are never refreshed.
func NewKeyringProvider(ring keyring.Keyring, oauthCfg *oauth2.Config, log logrus.FieldLogger) *KeyringProvider {
	return &KeyringProvider{ring: ring, oauth: oauthCfg, log: log}
}

func tokenKey(address string) string {
	return "oauth:" + strings.ToLower(strings.TrimSpace(address))
}

// Token returns the stored token for address.
func (p *KeyringProvider) Token(address string) (*oauth2.Token, error) {
	item, err := p.ring.Get(tokenKey(address))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, &TokenError{Address: address, Err: ErrNoToken}
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", tokenKey(address), err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, &TokenError{Address: address, Err: fmt.Errorf("decoding stored token: %w", err)}
	}
	return &tok, nil
}

// SaveToken stores tok for address, replacing any previous token.
func (p *KeyringProvider) SaveToken(address string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	err = p.ring.Set(keyring.Item{
		Key:         tokenKey(address),
		Data:        data,
		Label:       "webmail " + address,
		Description: "OAuth token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey(address), err)
	}
	return nil
}

// DeleteToken removes the token for address. Removing a missing token is
// not an error.
func (p *KeyringProvider) DeleteToken(address string) error {
	err := p.ring.Remove(tokenKey(address))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey(address), err)
	}
	return nil
}

// Identity returns the identity for address, refreshing and persisting the
// token first when it has expired and can be refreshed. Otherwise the
// stored token is returned as is.
func (p *KeyringProvider) Identity(ctx context.Context, address string) (model.Identity, error) {
	tok, err := p.Token(address)
	if err != nil {
		return model.Identity{}, err
	}

	if !tok.Valid() && tok.RefreshToken != "" && p.oauth != nil {
		fresh, err := p.oauth.TokenSource(ctx, tok).Token()
		if err != nil {
			return model.Identity{}, &TokenError{Address: address, Err: fmt.Errorf("refreshing token: %w", err)}
		}

		if fresh.AccessToken != tok.AccessToken {
			if err := p.SaveToken(address, fresh); err != nil {
				p.logger().WithError(err).Warn("persisting refreshed token")
			} else {
				p.logger().WithField("address", address).Info("refreshed access token")
			}
		}
		tok = fresh
	}

	return model.Identity{
		Address:      address,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

func (p *KeyringProvider) logger() logrus.FieldLogger {
	if p.log != nil {
		return p.log
	}
	return logrus.StandardLogger()
}

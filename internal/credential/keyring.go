package credential

import (
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/webmail/internal/model"
)

// OpenKeyring returns a keyring configured from cfg. The file backend is
// the fallback on hosts without a system keychain.
func OpenKeyring(cfg model.KeyringConfig) (keyring.Keyring, error) {
	service := cfg.Service
	if service == "" {
		service = "webmail"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

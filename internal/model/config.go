package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`

	// FrontendURL is the origin allowed by CORS.
	FrontendURL string `mapstructure:"frontend_url" yaml:"frontend_url"`
}

// IMAPConfig holds the remote mailbox server settings.
type IMAPConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// StoreConfig selects the database driver and its data source.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// SyncConfig holds defaults for sync and delete operations.
type SyncConfig struct {
	Mailbox           string  `mapstructure:"mailbox" yaml:"mailbox"`
	Limit             int     `mapstructure:"limit" yaml:"limit"`
	PollIntervalSec   int     `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	DeleteConcurrency int     `mapstructure:"delete_concurrency" yaml:"delete_concurrency"`
	DeleteRatePerSec  float64 `mapstructure:"delete_rate_per_sec" yaml:"delete_rate_per_sec"`
}

// AccountConfig names the single mailbox this server serves.
type AccountConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Name    string `mapstructure:"name" yaml:"name"`
}

// OAuthConfig holds the OAuth client used to refresh expired tokens.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// KeyringConfig controls where bearer tokens are kept.
type KeyringConfig struct {
	Service string `mapstructure:"service" yaml:"service"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	OAuth   OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Keyring KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// envPrefix namespaces environment overrides, e.g. WEBMAIL_IMAP_HOST.
const envPrefix = "WEBMAIL"

// DefaultConfigDir returns ~/.config/webmail, or the working directory
// when the home directory cannot be resolved.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "webmail")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/webmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := DefaultConfigDir()
	return &AppConfig{
		Server: ServerConfig{
			Addr:        ":5000",
			FrontendURL: "http://localhost:5173",
		},
		IMAP: IMAPConfig{
			Host:           "imap.gmail.com",
			Port:           993,
			ConnectTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(dir, "webmail.db"),
		},
		Sync: SyncConfig{
			Mailbox:           "INBOX",
			Limit:             50,
			DeleteConcurrency: 4,
			DeleteRatePerSec:  5,
		},
		Keyring: KeyringConfig{
			Service: "webmail",
			FileDir: filepath.Join(dir, "credentials"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults mirrors defaultAppConfig so that viper resolves missing keys
// and environment overrides for keys absent from the file.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.frontend_url", cfg.Server.FrontendURL)
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.connect_timeout", cfg.IMAP.ConnectTimeout)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("sync.mailbox", cfg.Sync.Mailbox)
	v.SetDefault("sync.limit", cfg.Sync.Limit)
	v.SetDefault("sync.poll_interval_sec", cfg.Sync.PollIntervalSec)
	v.SetDefault("sync.delete_concurrency", cfg.Sync.DeleteConcurrency)
	v.SetDefault("sync.delete_rate_per_sec", cfg.Sync.DeleteRatePerSec)
	v.SetDefault("account.address", "")
	v.SetDefault("account.name", "")
	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("keyring.service", cfg.Keyring.Service)
	v.SetDefault("keyring.file_dir", cfg.Keyring.FileDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values from a .env file in the working directory and WEBMAIL_* variables
// override the file. If the file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := defaultAppConfig()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.Limit <= 0 {
		cfg.Sync.Limit = 50
	}
	if cfg.Sync.DeleteConcurrency <= 0 {
		cfg.Sync.DeleteConcurrency = 1
	}
	if cfg.IMAP.ConnectTimeout <= 0 {
		cfg.IMAP.ConnectTimeout = 10 * time.Second
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("imap", cfg.IMAP)
	v.Set("store", cfg.Store)
	v.Set("sync", cfg.Sync)
	v.Set("account", cfg.Account)
	v.Set("oauth", cfg.OAuth)
	v.Set("keyring", cfg.Keyring)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

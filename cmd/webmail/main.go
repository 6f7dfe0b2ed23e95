package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/webmail/internal/model"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
)

type rootOptions struct {
	configPath  string
	profileMode string
	profilePath string

	profiler interface{ Stop() }
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "webmail",
		Short:         "Webmail - a personal IMAP mailbox viewer",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.startProfile()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.profiler != nil {
				opts.profiler.Stop()
			}
		},
	}
	if commit != "" {
		rootCmd.Version = version + " (" + commit + ")"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "Path to the configuration file")
	flags.StringVar(&opts.profileMode, "profile", "", "Enable profiling: cpu, mem, or block")
	flags.StringVar(&opts.profilePath, "profile-path", "", "Path where to write profile data")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newStatsCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) startProfile() error {
	var mode func(*profile.Profile)
	switch o.profileMode {
	case "":
		return nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "block":
		mode = profile.BlockProfile
	default:
		return fmt.Errorf("unknown profile mode %q", o.profileMode)
	}

	o.profiler = profile.Start(mode, profile.ProfilePath(o.profilePath), profile.NoShutdownHook, profile.Quiet)
	return nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg model.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return log, nil
}

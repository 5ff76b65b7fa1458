package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/auth"
	"github.com/actcue/actcue/internal/backend"
	"github.com/actcue/actcue/internal/config"
	"github.com/actcue/actcue/internal/logging"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "actcue",
		Short: "Voice capture to action pipeline",
		Long: `actcue records voice captures, guards them against duration and session
limits, stores them durably until the backend confirms persistence, and
processes them into transcripts and extracted action statements.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/actcue/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(pauseCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

// appRuntime bundles the wiring shared by commands that need config and
// logging.
type appRuntime struct {
	cfg    config.Loaded
	logs   logging.Runtime
	logger *slog.Logger
}

func newAppRuntime() (*appRuntime, error) {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, warning := range loaded.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning.Message)
	}

	logs, err := logging.New(verbose)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	return &appRuntime{cfg: loaded, logs: logs, logger: logs.Logger}, nil
}

func (r *appRuntime) Close() {
	_ = r.logs.Close()
}

// backendClient builds the API client from config.
func (r *appRuntime) backendClient(tokens backend.TokenSource) *backend.Client {
	be := r.cfg.Config.Backend
	return backend.New(be.URL, be.HealthPath, time.Duration(be.TimeoutSeconds)*time.Second, tokens, r.logger)
}

// tokenPath resolves the configured or default token location.
func (r *appRuntime) tokenPath() (string, error) {
	if path := r.cfg.Config.Auth.TokenPath; path != "" {
		return path, nil
	}
	return config.DefaultTokenPath()
}

// loadAuthSession loads the token file if present. A missing token is not
// an error; it returns a nil session.
func loadAuthSession(rt *appRuntime, refresher auth.Refresher) (*auth.FileSession, error) {
	tokenPath, err := rt.tokenPath()
	if err != nil {
		return nil, err
	}
	warnWindow := time.Duration(rt.cfg.Config.Auth.WarnWindowSeconds) * time.Second
	sess, err := auth.LoadFileSession(tokenPath, warnWindow, refresher)
	if errors.Is(err, auth.ErrNoToken) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

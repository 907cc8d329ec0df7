package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/vision"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	logLevel   string
	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "attendctl",
	Short:         "Offline enrollment, recognition and ledger tools for the attendance service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		observability.SetupLogger(level, "text")
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: built-in defaults plus ATTEND_* environment)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// loadEngine loads the models and fails unless embeddings can be computed.
func loadEngine() (*vision.Runtime, error) {
	rt, err := vision.LoadRuntime(cfg.Vision)
	if err != nil {
		return nil, err
	}
	if !rt.Engine.Ready() {
		rt.Close()
		return nil, fmt.Errorf("embedding model %s: %w", cfg.Vision.EmbedderModel, vision.ErrModelUnavailable)
	}
	return rt, nil
}

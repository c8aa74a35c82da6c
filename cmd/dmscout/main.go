package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dmscout/internal/auth"
	"dmscout/internal/config"
	"dmscout/internal/dispatch"
	"dmscout/internal/logging"
)

// Exit codes surfaced to shell callers. Anything else fails with 1.
const (
	exitOK                   = 0
	exitGeneric              = 1
	exitAuthentication       = 2
	exitUnsupportedChallenge = 3
	exitChallengeTimeout     = 4
	exitTemplateLoad         = 5
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	headless   bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dmscout",
	Short: "dmscout - group conversation harvesting and messaging for X",
	Long: `dmscout automates an X (Twitter) web client: it logs accounts in,
harvests group-conversation data from the client's own network traffic,
reconciles it into a local dataset, and dispatches templated messages
into trusted conversations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env beside the binary can carry credentials and overrides.
		_ = godotenv.Load()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		}

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		if cmd.Root().PersistentFlags().Changed("headless") {
			cfg.Browser.Headless = headless
		}

		return logging.Initialize(workspace, logging.Options{
			Debug:      cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "Run the browser headless (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps failure classes onto the documented shell contract.
func exitCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrAuthentication):
		return exitAuthentication
	case errors.Is(err, auth.ErrUnsupportedChallenge):
		return exitUnsupportedChallenge
	case errors.Is(err, auth.ErrChallengeTimeout):
		return exitChallengeTimeout
	case errors.Is(err, dispatch.ErrTemplateLoad):
		return exitTemplateLoad
	default:
		return exitGeneric
	}
}

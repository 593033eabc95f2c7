// Package cmd implements the pricewatch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/logging"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is built once per invocation and shared by subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

type rootOptions struct {
	configPath   string
	databasePath string
	verbose      bool
}

// loadConfig is a variable so tests can inject configuration.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pricewatch",
		Short: "Track prices on web pages and get notified when they change.",
		Long: `pricewatch fetches every configured product page, extracts the price with
a CSS selector, compares it with the last stored value and sends a
notification when it changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.toml", "path to the products configuration file")
	cmd.PersistentFlags().StringVarP(&opts.databasePath, "database", "d", "",
		"path to the price store; overrides store.path (file) or store.dsn (sqlite)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newCheckCmd(), newListCmd())
	return cmd
}

func newRuntime(opts *rootOptions, out io.Writer) (*runtime, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.databasePath != "" {
		switch cfg.Store.Backend {
		case config.BackendFile:
			cfg.Store.Path = opts.databasePath
		case config.BackendSQLite:
			cfg.Store.DSN = opts.databasePath
		default:
			return nil, tracker.NewError(tracker.ReasonConfigInvalid, "",
				fmt.Errorf("--database is not supported for the %s backend", cfg.Store.Backend))
		}
	}

	var logOpts []logging.Option
	if opts.verbose {
		logOpts = append(logOpts, logging.Verbose())
	}
	logger, err := logging.New(cfg.Logging.Development, logOpts...)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, out: out}, nil
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute runs the CLI and exits non-zero on a fatal error.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pricewatch: %v\n", err)
		return 1
	}
	return 0
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/app"
)

// buildApp is a variable so tests can substitute the services.
var buildApp = app.Build

func newCheckCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check every configured product once",
		Long: `Fetches all products concurrently, updates the price store and sends
notifications for changed prices. The store is only written when the
run completes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					rt.logger.Warn("Failed to close services", zap.Error(cerr))
				}
			}()

			sum, err := a.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			if !quiet {
				renderSummary(rt.out, sum)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the summary table")
	return cmd
}

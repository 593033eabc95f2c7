package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/pricewatch/internal/app"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the stored prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			store, closeStore, err := app.OpenStore(cmd.Context(), rt.cfg.Store, rt.logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			state, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			renderState(rt.out, state)
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
	"github.com/JakeFAU/aqsharvest/internal/prompt"
)

func newParametersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parameters CLASS [CLASS...]",
		Short: "Resolve parameter classes and print their parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := resolveConfig(ctx)
			if err != nil {
				return err
			}
			known, unknown := harvest.FilterClasses(args)
			if len(unknown) > 0 {
				return fmt.Errorf("unknown parameter classes: %v", unknown)
			}

			console := prompt.NewTerminal(os.Stdin, cmd.OutOrStdout())
			if cfg.AQS.Email, cfg.AQS.Key, err = console.Credentials(cfg.AQS.Email, cfg.AQS.Key); err != nil {
				return err
			}
			cfg.Progress.Console = false

			app, err := newApp(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				_ = app.Close(closeCtx)
			}()

			groups, err := app.Resolver().ResolveConcurrent(ctx, known)
			if err != nil {
				return err
			}
			if harvest.CountParameters(groups) == 0 {
				return fmt.Errorf("classes %v: %w", known, harvest.ErrNoParameters)
			}
			console.ShowGroups(groups)
			return nil
		},
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/config"
	"github.com/JakeFAU/aqsharvest/internal/harvest"
	"github.com/JakeFAU/aqsharvest/internal/prompt"
)

type profileCommand struct {
	name  string
	short string
	long  string
}

var profileCommands = []profileCommand{
	{
		name:  harvest.ProfileHarvest,
		short: "Interactively download selected parameter classes",
		long: `Prompts for credentials, years and parameter classes (unless given by
flag or config), resolves every class concurrently, shows the parameters and
asks for confirmation before downloading. Output is laid out as
<class>/<county>/<parameter>/<parameter>_<county>_<year>.csv, plus one
whole-range file per parameter and county.`,
	},
	{
		name:  harvest.ProfileParticulates,
		short: "Download the particulate matter parameters",
		long: `Downloads PM2.5 FRM/FEM, PM2.5 non-FRM/FEM, PM10 and PMc daily data
into <parameter>/<county>/<county>_<year>.csv.`,
	},
	{
		name:  harvest.ProfileToxics,
		short: "Download the merged HAPS and VOC parameters",
		long: `Resolves the HAPS and VOC classes, merges them by parameter name and
downloads daily data into <parameter>/<county>/<county>_<year>.csv.`,
	},
}

func newProfileCmd(pc profileCommand) *cobra.Command {
	return &cobra.Command{
		Use:   pc.name,
		Short: pc.short,
		Long:  pc.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProfile(cmd, pc.name)
		},
	}
}

func runProfile(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	profile, err := cfg.Profile(name)
	if err != nil {
		return err
	}

	var console *prompt.Console
	if profile.Interactive {
		console = prompt.NewTerminal(os.Stdin, cmd.OutOrStdout())
		if err := fillInteractive(console, cfg, &profile); err != nil {
			return err
		}
	}

	app, err := newApp(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()
	if err := app.Serve(ctx); err != nil {
		return err
	}
	logger := app.Logger().With(zap.String("profile", profile.Name))

	var confirm harvest.ConfirmFunc
	if console != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Fetching parameter data, please wait...")
		if !cfg.Run.Yes {
			confirm = console.ConfirmGroups
		}
	}

	summary, err := app.Runner().Run(ctx, profile, confirm)
	switch {
	case errors.Is(err, harvest.ErrNoParameters):
		fmt.Fprintln(cmd.OutOrStdout(), "Terminating due to invalid API credentials or connection issue.")
		return err
	case errors.Is(err, harvest.ErrCancelled):
		return err
	case err != nil && summary.Requests == 0:
		return err
	}

	logger.Info("sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("requests", summary.Requests),
		zap.Int("data", summary.Data),
		zap.Int("empty", summary.Empty),
		zap.Int("failed", summary.Failed),
		zap.Int("files", summary.Files),
		zap.Int("rows", summary.Rows),
		zap.Int("failures", summary.Failures),
		zap.Int("dropped_fields", summary.DroppedFields),
		zap.Duration("duration", summary.Duration()),
	)
	if err != nil {
		return fmt.Errorf("sweep interrupted after %d requests: %w", summary.Requests, err)
	}
	return nil
}

// fillInteractive prompts for whatever the config and flags left unset.
func fillInteractive(console *prompt.Console, cfg *config.Config, p *harvest.Profile) error {
	email, key, err := console.Credentials(cfg.AQS.Email, cfg.AQS.Key)
	if err != nil {
		return err
	}
	cfg.AQS.Email, cfg.AQS.Key = email, key

	if p.Years, err = console.Years(p.Years); err != nil {
		return err
	}

	if len(p.Classes) == 0 {
		if p.Classes, err = console.Classes(); err != nil {
			return err
		}
		return nil
	}
	known, unknown := harvest.FilterClasses(p.Classes)
	if len(unknown) > 0 {
		return fmt.Errorf("unknown parameter classes: %v", unknown)
	}
	p.Classes = known
	return nil
}

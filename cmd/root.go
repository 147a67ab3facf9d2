// Package cmd defines and implements the CLI commands for the aqsharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/aqsharvest/internal/config"
	"github.com/JakeFAU/aqsharvest/internal/server"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// newApp is the application factory. It's a variable so tests can
// supply isolated collaborators.
var newApp = func(ctx context.Context, cfg *config.Config, stdout io.Writer) (*server.App, error) {
	return server.Build(ctx, cfg, server.Options{Stdout: stdout, Version: Version})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := config.New()

	cmd := &cobra.Command{
		Use:   "aqsharvest",
		Short: "Download EPA AQS daily air quality data into CSV files.",
		Long: `aqsharvest resolves AQS parameter classes into parameter codes, then
requests daily county data for every parameter, county and year and writes
each non-empty result to its own CSV file.`,
		Version:      Version,
		SilenceUsage: true,

		// Runs before every subcommand: load config with flags bound on top.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, &cfg))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.Int("start-year", 0, "first year to download")
	flags.Int("end-year", 0, "last year to download")
	flags.StringSlice("classes", nil, "parameter classes to resolve, e.g. VOC,HAPS")
	flags.Bool("yes", false, "skip the download confirmation")
	flags.String("output", "", "directory the CSV tree is written under")
	flags.Duration("delay", 0, "pause between requests (default 5s)")
	flags.String("metrics-addr", "", "serve /metrics and run status on this address")
	bindFlags(v, cmd, map[string]string{
		"run.start_year":         "start-year",
		"run.end_year":           "end-year",
		"run.classes":            "classes",
		"run.yes":                "yes",
		"storage.local.base_dir": "output",
		"run.delay":              "delay",
		"metrics.addr":           "metrics-addr",
	})

	cmd.AddCommand(
		newProfileCmd(profileCommands[0]),
		newProfileCmd(profileCommands[1]),
		newProfileCmd(profileCommands[2]),
		newClassesCmd(),
		newParametersCmd(),
	)
	return cmd
}

// bindFlags binds each flag to its config key. Flags only override config
// when set on the command line.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the root command with ctx, which is cancelled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

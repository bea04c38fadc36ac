package cli

import (
	"encoding/json"
	"fmt"

	"github.com/jaa/resource-fetcher/internal/config"
	"github.com/jaa/resource-fetcher/internal/exitcode"
	"github.com/jaa/resource-fetcher/internal/worker"
	"github.com/spf13/cobra"
)

func newValidateCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and show how the worker will be launched",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			if err := config.Validate(cfg); err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			env, err := worker.EnvironmentFromConfig(cfg.Worker)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			bin, prefix, err := env.Binary()
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			launcher := formatLauncher(bin, prefix)

			if app.Opts.JSON {
				payload := map[string]any{
					"valid":      true,
					"mode":       cfg.Worker.Mode,
					"launcher":   launcher,
					"output_dir": cfg.Defaults.OutputDir,
				}
				encoded, _ := json.Marshal(payload)
				fmt.Fprintln(app.IO.Out, string(encoded))
			} else {
				fmt.Fprintln(app.IO.Out, "Config is valid.")
				fmt.Fprintf(app.IO.Out, "Worker: %s (%s mode)\n", launcher, cfg.Worker.Mode)
			}
			return nil
		},
	}
}

func formatLauncher(bin string, prefix []string) string {
	launcher := bin
	for _, arg := range prefix {
		launcher += " " + arg
	}
	return launcher
}

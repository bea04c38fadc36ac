package cli

import (
	"fmt"
	"os"

	"github.com/jaa/resource-fetcher/internal/exitcode"
	"github.com/jaa/resource-fetcher/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Execute(build BuildInfo, streams IOStreams) int {
	app := &AppContext{Build: build, IO: streams}

	if wd, err := os.Getwd(); err == nil {
		keys, envErr := loadDotEnvFiles(wd, os.Environ(), os.Setenv)
		if envErr != nil {
			fmt.Fprintln(streams.ErrOut, "WARN:", envErr)
		}
		app.DotEnvKeys = keys
	}

	root := newRootCommand(app)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		return mapExitCode(err)
	}
	return exitcode.Success
}

func newRootCommand(app *AppContext) *cobra.Command {
	showVersion := false

	root := &cobra.Command{
		Use:   "rfetch",
		Short: "Download albums and songs through the resource-fetcher worker",
		Long:  "rfetch launches the resource-fetcher worker, follows its progress markers and reports download progress as it happens.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.ResolveLevel(app.Opts.LogLevel, app.Opts.Verbose)
			logging.Init(level, app.IO.ErrOut, !app.Opts.NoColor && writerIsTTY(app.IO.ErrOut))
			if len(app.DotEnvKeys) > 0 {
				log.Debug().Strs("keys", app.DotEnvKeys).Msg("loaded .env files")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(app)
				return nil
			}
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	defaultConfigPath := os.Getenv("RFETCH_CONFIG")
	root.PersistentFlags().StringVarP(&app.Opts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVar(&app.Opts.JSON, "json", false, "Emit newline-delimited JSON events")
	root.PersistentFlags().BoolVarP(&app.Opts.Quiet, "quiet", "q", false, "Reduce output to errors and summary")
	root.PersistentFlags().BoolVarP(&app.Opts.Verbose, "verbose", "v", false, "Show every song and the worker's own output")
	root.PersistentFlags().BoolVar(&app.Opts.NoColor, "no-color", false, "Disable color output")
	root.PersistentFlags().BoolVar(&app.Opts.NoInput, "no-input", false, "Disable interactive prompts")
	root.PersistentFlags().BoolVarP(&app.Opts.DryRun, "dry-run", "n", false, "Print the worker command without running it")
	root.PersistentFlags().StringVar(&app.Opts.LogLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error (default warn, or RFETCH_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&app.Opts.EventLog, "event-log", "", "Append every notification as NDJSON to this file")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version info")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(exitcode.InvalidUsage, err)
	})

	root.AddCommand(newAlbumCommand(app))
	root.AddCommand(newSongCommand(app))
	root.AddCommand(newInitCommand(app))
	root.AddCommand(newValidateCommand(app))
	root.AddCommand(newDoctorCommand(app))
	root.AddCommand(newVersionCommand(app))

	return root
}

func printVersion(app *AppContext) {
	fmt.Fprintf(app.IO.Out, "rfetch version %s\ncommit: %s\nbuild_date: %s\n",
		orDefault(app.Build.Version, "dev"),
		orDefault(app.Build.Commit, "unknown"),
		orDefault(app.Build.Date, "unknown"),
	)
}

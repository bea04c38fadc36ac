package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version/build metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.Opts.JSON {
				printVersion(app)
				return nil
			}
			encoded, err := json.Marshal(map[string]string{
				"version": orDefault(app.Build.Version, "dev"),
				"commit":  orDefault(app.Build.Commit, "unknown"),
				"date":    orDefault(app.Build.Date, "unknown"),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.IO.Out, string(encoded))
			return err
		},
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

package config

import "fmt"

func DefaultTemplate() string {
	defaults := DefaultConfig().Defaults
	return fmt.Sprintf(`version: 1
worker:
  # "module" runs <interpreter> -m <module>; "executable" runs a frozen build.
  mode: "module"
  module: %q
  # runtime_env: "~/.venvs/resource-fetcher"
  # interpreter: "/usr/bin/python3"
  # executable: "~/bin/resource-fetcher"
  extra_args: []
defaults:
  output_dir: %q
  timeout_seconds: %d
  retries: %d
  delay_seconds: %g
  overwrite: false
  renumber: false
  session_timeout_seconds: 0
`, DefaultModule, defaults.OutputDir, defaults.TimeoutSeconds, defaults.Retries, defaults.DelaySeconds)
}

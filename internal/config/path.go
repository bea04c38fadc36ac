package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

func UserConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, "rfetch", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "rfetch", "config.yaml"), nil
}

func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, "rfetch.yaml")
}

func ExpandPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(strings.TrimSpace(raw))
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~/"))
	}

	return filepath.Clean(expanded), nil
}

// RuntimeEnvBinDir is the directory holding a virtual environment's
// executables.
func RuntimeEnvBinDir(runtimeEnv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(runtimeEnv, "Scripts")
	}
	return filepath.Join(runtimeEnv, "bin")
}

func RuntimeEnvInterpreter(runtimeEnv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(RuntimeEnvBinDir(runtimeEnv), "python.exe")
	}
	return filepath.Join(RuntimeEnvBinDir(runtimeEnv), "python")
}

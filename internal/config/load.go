package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type LoadOptions struct {
	ExplicitPath string
	WorkingDir   string
	Env          map[string]string
}

type fileConfig struct {
	Version  *int         `yaml:"version"`
	Worker   fileWorker   `yaml:"worker"`
	Defaults fileDefaults `yaml:"defaults"`
}

type fileWorker struct {
	Mode        *string   `yaml:"mode"`
	Interpreter *string   `yaml:"interpreter"`
	Executable  *string   `yaml:"executable"`
	RuntimeEnv  *string   `yaml:"runtime_env"`
	Module      *string   `yaml:"module"`
	ExtraArgs   *[]string `yaml:"extra_args"`
}

type fileDefaults struct {
	OutputDir             *string  `yaml:"output_dir"`
	TimeoutSeconds        *int     `yaml:"timeout_seconds"`
	Retries               *int     `yaml:"retries"`
	DelaySeconds          *float64 `yaml:"delay_seconds"`
	Overwrite             *bool    `yaml:"overwrite"`
	Renumber              *bool    `yaml:"renumber"`
	SessionTimeoutSeconds *int     `yaml:"session_timeout_seconds"`
}

func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	cwd := opts.WorkingDir
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	env := opts.Env
	if env == nil {
		env = osEnvMap()
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if err := mergeFile(&cfg, explicit, true); err != nil {
			return Config{}, err
		}
	} else {
		userPath, err := UserConfigPath()
		if err != nil {
			return Config{}, err
		}
		if err := mergeFile(&cfg, userPath, false); err != nil {
			return Config{}, err
		}

		if err := mergeFile(&cfg, ProjectConfigPath(cwd), false); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg, env); err != nil {
		return Config{}, err
	}

	normalize(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(payload, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Version != nil {
		cfg.Version = *fc.Version
	}

	if fc.Worker.Mode != nil {
		cfg.Worker.Mode = WorkerMode(strings.TrimSpace(*fc.Worker.Mode))
	}
	if fc.Worker.Interpreter != nil {
		cfg.Worker.Interpreter = strings.TrimSpace(*fc.Worker.Interpreter)
	}
	if fc.Worker.Executable != nil {
		cfg.Worker.Executable = strings.TrimSpace(*fc.Worker.Executable)
	}
	if fc.Worker.RuntimeEnv != nil {
		cfg.Worker.RuntimeEnv = strings.TrimSpace(*fc.Worker.RuntimeEnv)
	}
	if fc.Worker.Module != nil {
		cfg.Worker.Module = strings.TrimSpace(*fc.Worker.Module)
	}
	if fc.Worker.ExtraArgs != nil {
		cfg.Worker.ExtraArgs = append([]string{}, (*fc.Worker.ExtraArgs)...)
	}

	if fc.Defaults.OutputDir != nil {
		cfg.Defaults.OutputDir = strings.TrimSpace(*fc.Defaults.OutputDir)
	}
	if fc.Defaults.TimeoutSeconds != nil {
		cfg.Defaults.TimeoutSeconds = *fc.Defaults.TimeoutSeconds
	}
	if fc.Defaults.Retries != nil {
		cfg.Defaults.Retries = *fc.Defaults.Retries
	}
	if fc.Defaults.DelaySeconds != nil {
		cfg.Defaults.DelaySeconds = *fc.Defaults.DelaySeconds
	}
	if fc.Defaults.Overwrite != nil {
		cfg.Defaults.Overwrite = *fc.Defaults.Overwrite
	}
	if fc.Defaults.Renumber != nil {
		cfg.Defaults.Renumber = *fc.Defaults.Renumber
	}
	if fc.Defaults.SessionTimeoutSeconds != nil {
		cfg.Defaults.SessionTimeoutSeconds = *fc.Defaults.SessionTimeoutSeconds
	}

	return nil
}

func applyEnvOverrides(cfg *Config, env map[string]string) error {
	if value := strings.TrimSpace(env["RFETCH_WORKER_MODE"]); value != "" {
		cfg.Worker.Mode = WorkerMode(value)
	}
	if value := strings.TrimSpace(env["RFETCH_INTERPRETER"]); value != "" {
		cfg.Worker.Interpreter = value
	}
	if value := strings.TrimSpace(env["RFETCH_EXECUTABLE"]); value != "" {
		cfg.Worker.Executable = value
	}
	if value := strings.TrimSpace(env["RFETCH_RUNTIME_ENV"]); value != "" {
		cfg.Worker.RuntimeEnv = value
	}
	if value := strings.TrimSpace(env["RFETCH_OUTPUT_DIR"]); value != "" {
		cfg.Defaults.OutputDir = value
	}

	intOverrides := []struct {
		key    string
		target *int
	}{
		{key: "RFETCH_TIMEOUT_SECONDS", target: &cfg.Defaults.TimeoutSeconds},
		{key: "RFETCH_RETRIES", target: &cfg.Defaults.Retries},
		{key: "RFETCH_SESSION_TIMEOUT_SECONDS", target: &cfg.Defaults.SessionTimeoutSeconds},
	}
	for _, override := range intOverrides {
		value := strings.TrimSpace(env[override.key])
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", override.key, value, err)
		}
		*override.target = parsed
	}

	if value := strings.TrimSpace(env["RFETCH_DELAY_SECONDS"]); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RFETCH_DELAY_SECONDS value %q: %w", value, err)
		}
		cfg.Defaults.DelaySeconds = parsed
	}
	return nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(string(cfg.Worker.Mode)) == "" {
		cfg.Worker.Mode = WorkerModeModule
	}
	if cfg.Worker.Mode == WorkerModeModule && strings.TrimSpace(cfg.Worker.Module) == "" {
		cfg.Worker.Module = DefaultModule
	}
	if strings.TrimSpace(cfg.Worker.Interpreter) == "" {
		if strings.TrimSpace(cfg.Worker.RuntimeEnv) != "" {
			cfg.Worker.Interpreter = RuntimeEnvInterpreter(cfg.Worker.RuntimeEnv)
		} else {
			cfg.Worker.Interpreter = DefaultInterpreter
		}
	}
}

func osEnvMap() map[string]string {
	result := map[string]string{}
	for _, pair := range os.Environ() {
		pieces := strings.SplitN(pair, "=", 2)
		if len(pieces) == 2 {
			result[pieces[0]] = pieces[1]
		}
	}
	return result
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}

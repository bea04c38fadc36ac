package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func Validate(cfg Config) error {
	problems := []string{}

	if cfg.Version != 1 {
		problems = append(problems, "version must be 1")
	}

	switch cfg.Worker.Mode {
	case WorkerModeModule:
		if strings.TrimSpace(cfg.Worker.Interpreter) == "" {
			problems = append(problems, "worker.interpreter must be set in module mode")
		}
		if strings.TrimSpace(cfg.Worker.Module) == "" {
			problems = append(problems, "worker.module must be set in module mode")
		}
	case WorkerModeExecutable:
		if strings.TrimSpace(cfg.Worker.Executable) == "" {
			problems = append(problems, "worker.executable must be set in executable mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("worker.mode %q is not supported (module or executable)", cfg.Worker.Mode))
	}

	for _, path := range []struct {
		name  string
		value string
	}{
		{name: "worker.runtime_env", value: cfg.Worker.RuntimeEnv},
		{name: "worker.executable", value: cfg.Worker.Executable},
	} {
		if _, err := ExpandPath(path.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s is invalid: %v", path.name, err))
		}
	}

	if strings.TrimSpace(cfg.Defaults.OutputDir) == "" {
		problems = append(problems, "defaults.output_dir must be set")
	} else if _, err := ExpandPath(cfg.Defaults.OutputDir); err != nil {
		problems = append(problems, "defaults.output_dir must be a valid path")
	}
	if cfg.Defaults.TimeoutSeconds <= 0 {
		problems = append(problems, "defaults.timeout_seconds must be > 0")
	}
	if cfg.Defaults.Retries < 0 {
		problems = append(problems, "defaults.retries must be >= 0")
	}
	if cfg.Defaults.DelaySeconds < 0 {
		problems = append(problems, "defaults.delay_seconds must be >= 0")
	}
	if cfg.Defaults.SessionTimeoutSeconds < 0 {
		problems = append(problems, "defaults.session_timeout_seconds must be >= 0")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

package config

type WorkerMode string

const (
	WorkerModeModule     WorkerMode = "module"
	WorkerModeExecutable WorkerMode = "executable"
)

const (
	DefaultModule      = "resource_fetcher_cli"
	DefaultInterpreter = "python3"
)

type Config struct {
	Version  int      `yaml:"version"`
	Worker   Worker   `yaml:"worker"`
	Defaults Defaults `yaml:"defaults"`
}

// Worker describes how the resource-fetcher worker is launched.
type Worker struct {
	Mode        WorkerMode `yaml:"mode"`
	Interpreter string     `yaml:"interpreter,omitempty"`
	Executable  string     `yaml:"executable,omitempty"`
	RuntimeEnv  string     `yaml:"runtime_env,omitempty"`
	Module      string     `yaml:"module,omitempty"`
	ExtraArgs   []string   `yaml:"extra_args,omitempty"`
}

type Defaults struct {
	OutputDir             string  `yaml:"output_dir"`
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	Retries               int     `yaml:"retries"`
	DelaySeconds          float64 `yaml:"delay_seconds"`
	Overwrite             bool    `yaml:"overwrite"`
	Renumber              bool    `yaml:"renumber"`
	SessionTimeoutSeconds int     `yaml:"session_timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		Version: 1,
		Worker: Worker{
			Mode:   WorkerModeModule,
			Module: DefaultModule,
		},
		Defaults: Defaults{
			OutputDir:      "./downloads",
			TimeoutSeconds: 60,
			Retries:        3,
			DelaySeconds:   0.5,
		},
	}
}

package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaa/resource-fetcher/internal/config"
)

// MinPythonVersion is the oldest interpreter the worker supports.
const MinPythonVersion = "3.10.0"

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type Check struct {
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) HasErrors() bool {
	return r.ErrorCount() > 0
}

func (r Report) ErrorCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			count++
		}
	}
	return count
}

func (r *Report) add(severity Severity, name string, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Severity: severity, Name: name, Message: fmt.Sprintf(format, args...)})
}

type Checker struct {
	LookPath      func(string) (string, error)
	ReadVersion   func(context.Context, string) (string, error)
	ImportModule  func(ctx context.Context, interpreter string, module string) error
	Stat          func(string) (os.FileInfo, error)
	CheckWritable func(string) error
}

func NewChecker() *Checker {
	return &Checker{
		LookPath:     exec.LookPath,
		ReadVersion:  defaultReadVersion,
		ImportModule: defaultImportModule,
		Stat:         os.Stat,
		CheckWritable: func(path string) error {
			return checkDirWritable(path)
		},
	}
}

func (c *Checker) Check(ctx context.Context, cfg config.Config) Report {
	report := Report{Checks: []Check{}}

	c.checkRuntimeEnv(&report, cfg.Worker)
	switch cfg.Worker.Mode {
	case config.WorkerModeExecutable:
		c.checkExecutable(ctx, &report, cfg.Worker)
	default:
		c.checkInterpreter(ctx, &report, cfg.Worker)
	}
	c.checkOutputDir(&report, cfg.Defaults.OutputDir)

	return report
}

func (c *Checker) checkRuntimeEnv(report *Report, worker config.Worker) {
	if strings.TrimSpace(worker.RuntimeEnv) == "" {
		return
	}
	dir, err := config.ExpandPath(worker.RuntimeEnv)
	if err != nil {
		report.add(SeverityError, "runtime_env", "runtime_env is invalid: %v", err)
		return
	}
	info, err := c.stat(dir)
	switch {
	case err != nil:
		report.add(SeverityError, "runtime_env", "runtime_env %s is missing: %v", dir, err)
	case !info.IsDir():
		report.add(SeverityError, "runtime_env", "runtime_env %s is not a directory", dir)
	default:
		report.add(SeverityInfo, "runtime_env", "runtime_env %s exists", dir)
	}
}

func (c *Checker) checkInterpreter(ctx context.Context, report *Report, worker config.Worker) {
	interpreter, err := config.ExpandPath(worker.Interpreter)
	if err != nil || interpreter == "" {
		report.add(SeverityError, "interpreter", "interpreter is not configured")
		return
	}
	if !strings.ContainsRune(worker.Interpreter, filepath.Separator) {
		interpreter = strings.TrimSpace(worker.Interpreter)
	}

	location, err := c.LookPath(interpreter)
	if err != nil {
		report.add(SeverityError, "interpreter", "%s not found: %v", interpreter, err)
		return
	}
	report.add(SeverityInfo, "interpreter", "%s found at %s", interpreter, location)

	output, err := c.ReadVersion(ctx, location)
	if err != nil {
		report.add(SeverityWarn, "interpreter", "%s version could not be read: %v", interpreter, err)
	} else if version, parseErr := extractVersion(output); parseErr != nil {
		report.add(SeverityWarn, "interpreter", "%s version output is unrecognized: %q", interpreter, strings.TrimSpace(output))
	} else if compareVersions(version, MinPythonVersion) < 0 {
		report.add(SeverityError, "interpreter", "python %s is below minimum %s", version, MinPythonVersion)
	} else {
		report.add(SeverityInfo, "interpreter", "python %s is compatible", version)
	}

	module := strings.TrimSpace(worker.Module)
	if module == "" {
		module = config.DefaultModule
	}
	if c.ImportModule == nil {
		return
	}
	if err := c.ImportModule(ctx, location, module); err != nil {
		report.add(SeverityError, "worker", "module %s is not importable: %v", module, err)
		return
	}
	report.add(SeverityInfo, "worker", "module %s is importable", module)
}

func (c *Checker) checkExecutable(ctx context.Context, report *Report, worker config.Worker) {
	executable, err := config.ExpandPath(worker.Executable)
	if err != nil || executable == "" {
		report.add(SeverityError, "worker", "worker executable is not configured")
		return
	}
	location, err := c.LookPath(executable)
	if err != nil {
		report.add(SeverityError, "worker", "%s not found: %v", executable, err)
		return
	}
	report.add(SeverityInfo, "worker", "%s found at %s", executable, location)

	output, err := c.ReadVersion(ctx, location)
	if err != nil {
		report.add(SeverityWarn, "worker", "%s version could not be read: %v", executable, err)
		return
	}
	if version, parseErr := extractVersion(output); parseErr == nil {
		report.add(SeverityInfo, "worker", "worker version %s", version)
	}
}

func (c *Checker) checkOutputDir(report *Report, raw string) {
	dir, err := config.ExpandPath(raw)
	if err != nil || dir == "" {
		report.add(SeverityError, "filesystem", "output_dir is invalid")
		return
	}
	if _, err := c.stat(dir); errors.Is(err, os.ErrNotExist) {
		report.add(SeverityWarn, "filesystem", "output_dir %s does not exist yet and will be created by the worker", dir)
		return
	}
	if err := c.CheckWritable(dir); err != nil {
		report.add(SeverityError, "filesystem", "output_dir %s is not writable: %v", dir, err)
		return
	}
	report.add(SeverityInfo, "filesystem", "output_dir %s is writable", dir)
}

func (c *Checker) stat(path string) (os.FileInfo, error) {
	if c.Stat == nil {
		return os.Stat(path)
	}
	return c.Stat(path)
}

func defaultReadVersion(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func defaultImportModule(ctx context.Context, interpreter string, module string) error {
	cmd := exec.CommandContext(ctx, interpreter, "-c", "import "+module)
	output, err := cmd.CombinedOutput()
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
			return errors.New(last)
		}
		return err
	}
	return nil
}

func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	file, err := os.CreateTemp(path, ".rfetch-write-check-*")
	if err != nil {
		return err
	}
	name := file.Name()
	_ = file.Close()
	_ = os.Remove(name)
	return nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

func extractVersion(raw string) (string, error) {
	matches := versionPattern.FindStringSubmatch(raw)
	if len(matches) != 4 {
		return "", fmt.Errorf("no version found")
	}
	patch := matches[3]
	if patch == "" {
		patch = "0"
	}
	return fmt.Sprintf("%s.%s.%s", matches[1], matches[2], patch), nil
}

func compareVersions(lhs string, rhs string) int {
	leftParts := strings.Split(lhs, ".")
	rightParts := strings.Split(rhs, ".")
	for i := 0; i < 3; i++ {
		leftValue := 0
		rightValue := 0
		if i < len(leftParts) {
			leftValue, _ = strconv.Atoi(leftParts[i])
		}
		if i < len(rightParts) {
			rightValue, _ = strconv.Atoi(rightParts[i])
		}
		if leftValue > rightValue {
			return 1
		}
		if leftValue < rightValue {
			return -1
		}
	}
	return 0
}

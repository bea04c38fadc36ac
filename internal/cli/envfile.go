package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var dotenvKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dotEnv accumulates values from .env files on top of the process
// environment. Process variables always win.
type dotEnv struct {
	process map[string]string
	loaded  map[string]string
}

func newDotEnv(environ []string) *dotEnv {
	process := map[string]string{}
	for _, pair := range environ {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		process[key] = value
	}
	return &dotEnv{process: process, loaded: map[string]string{}}
}

func (d *dotEnv) lookup(key string) string {
	if value, ok := d.process[key]; ok {
		return value
	}
	return d.loaded[key]
}

// loadDotEnvFiles applies .env and then .env.local from cwd and returns the
// keys it set, sorted.
func loadDotEnvFiles(cwd string, environ []string, setenv func(string, string) error) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, nil
	}
	if setenv == nil {
		return nil, fmt.Errorf("setenv is required")
	}

	env := newDotEnv(environ)
	for _, file := range []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(cwd, ".env.local"),
	} {
		if err := env.applyFile(file); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(env.loaded))
	for key := range env.loaded {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := setenv(key, env.loaded[key]); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}
	return keys, nil
}

func (d *dotEnv) applyFile(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		entry, ok, parseErr := parseDotEnvLine(scanner.Text())
		if parseErr != nil {
			return fmt.Errorf("parse %s:%d: %w", path, lineNo, parseErr)
		}
		if !ok {
			continue
		}
		if _, exists := d.process[entry.key]; exists {
			continue
		}
		value := entry.value
		if entry.expand {
			value = os.Expand(value, d.lookup)
		}
		d.loaded[entry.key] = value
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

type dotEnvEntry struct {
	key    string
	value  string
	expand bool
}

// parseDotEnvLine accepts KEY=VALUE with an optional export prefix. Single
// quoted values are literal; unquoted values drop a trailing " # comment".
func parseDotEnvLine(raw string) (dotEnvEntry, bool, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return dotEnvEntry{}, false, nil
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	if !found {
		return dotEnvEntry{}, false, fmt.Errorf("expected KEY=VALUE format")
	}
	key = strings.TrimSpace(key)
	if !dotenvKeyPattern.MatchString(key) {
		return dotEnvEntry{}, false, fmt.Errorf("invalid key %q", key)
	}
	value = strings.TrimSpace(value)

	switch {
	case len(value) >= 2 && strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\""):
		decoded, err := strconv.Unquote(value)
		if err != nil {
			return dotEnvEntry{}, false, fmt.Errorf("invalid quoted value for %q", key)
		}
		return dotEnvEntry{key: key, value: decoded, expand: true}, true, nil
	case len(value) >= 2 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'"):
		return dotEnvEntry{key: key, value: value[1 : len(value)-1]}, true, nil
	}

	if idx := strings.Index(value, " #"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return dotEnvEntry{key: key, value: value, expand: true}, true, nil
}

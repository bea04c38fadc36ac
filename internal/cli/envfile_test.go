package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func captureSetenv(values map[string]string) func(string, string) error {
	return func(key, value string) error {
		values[key] = value
		return nil
	}
}

func TestLoadDotEnvFilesLoadsEnvAndLocalOverrides(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte("RFETCH_INTERPRETER=/tmp/bin/python-a\nRFETCH_RETRIES=1\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, ".env.local"), []byte("RFETCH_INTERPRETER=/tmp/bin/python-b\n"), 0o644); err != nil {
		t.Fatalf("write .env.local: %v", err)
	}

	values := map[string]string{}
	keys, err := loadDotEnvFiles(tmp, nil, captureSetenv(values))
	if err != nil {
		t.Fatalf("load dotenv files: %v", err)
	}
	if values["RFETCH_INTERPRETER"] != "/tmp/bin/python-b" {
		t.Fatalf("expected .env.local to override .env, got %q", values["RFETCH_INTERPRETER"])
	}
	if values["RFETCH_RETRIES"] != "1" {
		t.Fatalf("expected RFETCH_RETRIES from .env, got %q", values["RFETCH_RETRIES"])
	}
	if !reflect.DeepEqual(keys, []string{"RFETCH_INTERPRETER", "RFETCH_RETRIES"}) {
		t.Fatalf("unexpected applied keys %v", keys)
	}
}

func TestLoadDotEnvFilesDoesNotOverrideProcessEnv(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte("RFETCH_INTERPRETER=/tmp/bin/python\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	values := map[string]string{}
	if _, err := loadDotEnvFiles(tmp, []string{"RFETCH_INTERPRETER=/already/set"}, captureSetenv(values)); err != nil {
		t.Fatalf("load dotenv files: %v", err)
	}
	if _, exists := values["RFETCH_INTERPRETER"]; exists {
		t.Fatalf("expected existing process env to be preserved")
	}
}

func TestLoadDotEnvFilesExpandsReferences(t *testing.T) {
	tmp := t.TempDir()
	payload := "RF_ROOT=/opt/rf\n" +
		"RFETCH_RUNTIME_ENV=${RF_ROOT}/.venv\n" +
		"RFETCH_OUTPUT_DIR=\"$HOME/Music\"\n" +
		"RFETCH_LITERAL='${RF_ROOT}'\n"
	if err := os.WriteFile(filepath.Join(tmp, ".env"), []byte(payload), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	values := map[string]string{}
	if _, err := loadDotEnvFiles(tmp, []string{"HOME=/home/test"}, captureSetenv(values)); err != nil {
		t.Fatalf("load dotenv files: %v", err)
	}
	if values["RFETCH_RUNTIME_ENV"] != "/opt/rf/.venv" {
		t.Fatalf("expected reference to earlier key, got %q", values["RFETCH_RUNTIME_ENV"])
	}
	if values["RFETCH_OUTPUT_DIR"] != "/home/test/Music" {
		t.Fatalf("expected reference to process env, got %q", values["RFETCH_OUTPUT_DIR"])
	}
	if values["RFETCH_LITERAL"] != "${RF_ROOT}" {
		t.Fatalf("expected single quotes to stay literal, got %q", values["RFETCH_LITERAL"])
	}
}

func TestParseDotEnvLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{line: `export RFETCH_INTERPRETER="/Users/test/.venv/bin/python"`, key: "RFETCH_INTERPRETER", value: "/Users/test/.venv/bin/python", ok: true},
		{line: "RFETCH_LOG_LEVEL='debug'", key: "RFETCH_LOG_LEVEL", value: "debug", ok: true},
		{line: "RFETCH_RETRIES=4 # bumped for flaky mirrors", key: "RFETCH_RETRIES", value: "4", ok: true},
		{line: "# comment", ok: false},
		{line: "   ", ok: false},
	}
	for _, tc := range tests {
		entry, ok, err := parseDotEnvLine(tc.line)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if ok != tc.ok || entry.key != tc.key || entry.value != tc.value {
			t.Fatalf("parse %q = (%+v, %v), want key=%q value=%q ok=%v", tc.line, entry, ok, tc.key, tc.value, tc.ok)
		}
	}

	if _, _, err := parseDotEnvLine("1BAD=value"); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if _, _, err := parseDotEnvLine("NOEQUALS"); err == nil {
		t.Fatalf("expected format error")
	}
}

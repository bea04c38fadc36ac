package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestResolveLevel(t *testing.T) {
	t.Setenv(LevelEnv, "info")

	if got := ResolveLevel("", false); got != zerolog.InfoLevel {
		t.Fatalf("expected env level info, got %s", got)
	}
	if got := ResolveLevel("error", false); got != zerolog.ErrorLevel {
		t.Fatalf("expected flag to win over env, got %s", got)
	}
	if got := ResolveLevel("error", true); got != zerolog.DebugLevel {
		t.Fatalf("expected verbose to force debug, got %s", got)
	}

	t.Setenv(LevelEnv, "")
	if got := ResolveLevel("", false); got != zerolog.WarnLevel {
		t.Fatalf("expected warn default, got %s", got)
	}
	if got := ParseLevel("loud"); got != zerolog.WarnLevel {
		t.Fatalf("expected unknown level to fall back to warn, got %s", got)
	}
}

func TestInitWritesConsoleOutput(t *testing.T) {
	previousLogger := log.Logger
	previousLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = previousLogger
		zerolog.SetGlobalLevel(previousLevel)
	})

	var buf bytes.Buffer
	Init(zerolog.InfoLevel, &buf, false)

	log.Debug().Msg("hidden")
	log.Info().Str("session_id", "abc").Msg("worker started")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "worker started") || !strings.Contains(out, "session_id=abc") {
		t.Fatalf("expected console formatted line, got %q", out)
	}
}

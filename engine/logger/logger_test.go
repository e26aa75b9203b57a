package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarning,
		"warning": LevelWarning,
		"error":   LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stderr)

	SetLevel(LevelWarning)
	defer SetLevel(LevelInfo)

	log := New("test")
	log.Info("hidden")
	log.Warning("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warning level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "[test]") {
		t.Errorf("expected warning line tagged with module, got %q", out)
	}
}

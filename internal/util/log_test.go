package util

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := NewLogger(io.Discard, tc.level).GetLevel(); got != tc.want {
			t.Fatalf("NewLogger(%q) level = %s, want %s", tc.level, got, tc.want)
		}
	}
}

func TestNewLoggerWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info")

	log.Debug().Msg("filtered out")
	log.Info().Msg("deposit accepted")

	out := buf.String()
	if !strings.Contains(out, "deposit accepted") {
		t.Fatalf("expected info output, got %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Fatalf("debug output leaked through: %q", out)
	}
}

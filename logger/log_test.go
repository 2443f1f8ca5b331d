package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleLogger(t *testing.T) {
	b := &bytes.Buffer{}
	l := NewConsoleLogger(&TextPrinter{Writer: b, Colors: false}, func(int) {})
	l.SetLevel(INFO)

	l.Debug("Debug %q", "llamas")
	l.Info("Info %q", "llamas")
	l.Warn("Warn %q", "llamas")
	l.Error("Error %q", "llamas")

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")

	if len(lines) != 3 {
		t.Fatalf("bad number of lines, got %d", len(lines))
	}

	if !strings.HasSuffix(lines[0], `Info "llamas"`) {
		t.Fatalf("line 0 bad, got %q", lines[0])
	}

	if !strings.HasSuffix(lines[1], `Warn "llamas"`) {
		t.Fatalf("line 1 bad, got %q", lines[1])
	}

	if !strings.HasSuffix(lines[2], `Error "llamas"`) {
		t.Fatalf("line 2 bad, got %q", lines[2])
	}
}

func TestConsoleLoggerWithFields(t *testing.T) {
	b := &bytes.Buffer{}
	l := NewConsoleLogger(&TextPrinter{Writer: b, Colors: false}, func(int) {})
	l = l.WithFields(StringField("endpoint", "status"))
	l.Info("connected")

	if !strings.Contains(b.String(), "endpoint=status") {
		t.Fatalf("expected field in output, got %q", b.String())
	}
}

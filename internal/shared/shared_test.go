package shared

import (
	"bytes"
	"strings"
	"testing"

	th "github.com/vishkrish200/spotify-organiser/internal/testing"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if len(a) != 36 {
		t.Errorf("expected UUID string, got %q", a)
	}
	if a == b {
		t.Error("expected distinct IDs")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("Writes To Buffer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		logger.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "value") {
			t.Errorf("unexpected log output: %q", out)
		}
	})

	t.Run("Defaults To Stderr", func(t *testing.T) {
		logger := NewLogger(nil)
		if logger == nil {
			t.Fatal("expected logger")
		}
	})

	t.Run("Tolerates Failing Writer", func(t *testing.T) {
		logger := NewLogger(&th.FWriter{})
		logger.Error("dropped")
	})

	t.Run("With Fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "ingest")
		logger.Info("tagged")
		if !strings.Contains(buf.String(), "ingest") {
			t.Errorf("expected field in output: %q", buf.String())
		}
	})
}

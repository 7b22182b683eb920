package runloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
)

func TestNewJSONLoggerWritesNewlineDelimitedJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, logiface.LevelInformational)

	logger.Err().Err(errors.New("boom")).Str("mode", DefaultMode).Log("something failed")

	line := strings.TrimRight(buf.String(), "\n")
	if line == "" {
		t.Fatal("expected at least one log line")
	}

	var decoded struct {
		Level  string         `json:"level"`
		Msg    string         `json:"msg"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output was not valid JSON: %v (line=%q)", err, line)
	}
	if decoded.Msg != "something failed" {
		t.Errorf("msg = %q, want %q", decoded.Msg, "something failed")
	}
	if decoded.Fields["mode"] != DefaultMode {
		t.Errorf("fields[mode] = %v, want %v", decoded.Fields["mode"], DefaultMode)
	}
	if decoded.Fields["error"] != "boom" {
		t.Errorf("fields[error] = %v, want %q", decoded.Fields["error"], "boom")
	}
}

func TestNewJSONLoggerBelowLevelIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, logiface.LevelError)

	logger.Debug().Str("x", "y").Log("should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got %q", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *logiface.Logger[logiface.Event]
	// Must not panic: nil *Logger is a documented no-op, exercised here since
	// RunLoop.logger defaults to nil when WithLogger is not supplied.
	logger.Err().Str("k", "v").Log("nobody sees this")
}

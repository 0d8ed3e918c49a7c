package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewText verifies that the level filter applies to the text handler.
func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Params{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	log.Info("hidden")
	log.Warn("shown", "session", "abc")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record passed a warn filter: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "session=abc") {
		t.Errorf("unexpected output: %s", out)
	}
}

// TestNewJSONWithFile verifies that records reach both the stream and the
// rotated file.
func TestNewJSONWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "formcoach.log")
	log, closeFn, err := New(Params{Level: "debug", JSON: true, File: path, MaxSizeMB: 1}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("rep completed", "rep", 3)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("stream output is not JSON: %v: %s", err, buf.String())
	}
	if rec["msg"] != "rep completed" || rec["rep"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Errorf("file = %q, want %q", data, buf.Bytes())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

// TestCombinedWriterContinues verifies that one failing writer does not stop
// the others.
func TestCombinedWriterContinues(t *testing.T) {
	var buf bytes.Buffer
	cw := NewCombinedWriter(failingWriter{}, &buf)
	if _, err := cw.Write([]byte("x")); err == nil {
		t.Error("expected the failure to be reported")
	}
	if buf.String() != "x" {
		t.Errorf("second writer got %q", buf.String())
	}
}

// Package logging builds the slog logger shared by the command-line tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Params struct {
	Level string
	// JSON selects the JSON handler instead of text.
	JSON bool
	// File, if set, receives a copy of every record and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger writing to out and, when p.File is set, to a rotated
// log file. The returned close function releases the file.
func New(p Params, out io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(p.Level)
	if err != nil {
		return nil, nil, err
	}

	w := out
	closeFn := func() error { return nil }
	if p.File != "" {
		file := &lumberjack.Logger{
			Filename:   p.File,
			MaxSize:    p.MaxSizeMB, // megabytes
			MaxBackups: p.MaxBackups,
			LocalTime:  false,
			Compress:   true,
		}
		w = NewCombinedWriter(out, file)
		closeFn = file.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if p.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closeFn, nil
}

// ParseLevel maps a level name to its slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}

// CombinedWriter writes every record to all of its writers, continuing past
// failures.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{Writers: writers}
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var err error
	for _, w := range cw.Writers {
		if _, werr := w.Write(p); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

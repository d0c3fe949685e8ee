package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// Color forces ANSI level colors in console output. When false, colors
	// are enabled only if the only output is a terminal.
	Color bool
}

// New builds a logger writing to every output path. "stdout" and "stderr"
// name the standard streams; anything else is a file opened for append.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))

	paths := cleanPaths(opts.OutputPaths)
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		w, err := openSink(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	var out io.Writer = io.MultiWriter(writers...)
	if len(writers) == 1 {
		out = writers[0]
	}

	withSource := opts.Development || level.Level() <= slog.LevelDebug
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "json":
		return slog.New(newJSONHandler(out, level, withSource)), nil
	case "", "console":
		color := opts.Color || (len(paths) == 1 && isTerminal(paths[0]))
		return slog.New(newConsoleHandler(out, level, withSource, color)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	switch value := strings.ToLower(strings.TrimSpace(level)); value {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := parsed.UnmarshalText([]byte(value)); err != nil {
			return slog.LevelInfo
		}
		return parsed
	}
}

// cleanPaths trims and dedupes paths, defaulting to stdout.
func cleanPaths(paths []string) []string {
	var out []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path != "" && !slices.Contains(out, path) {
			out = append(out, path)
		}
	}
	if len(out) == 0 {
		return []string{"stdout"}
	}
	return out
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func isTerminal(path string) bool {
	switch path {
	case "stdout":
		return isatty.IsTerminal(os.Stdout.Fd())
	case "stderr":
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

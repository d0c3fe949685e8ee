package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"
)

// newJSONHandler emits one object per line with a UTC "ts", lowercase level,
// file:line sources, errors as strings, and durations as fractional seconds.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
		case slog.LevelKey:
			return slog.String(slog.LevelKey, levelName(attr.Value))
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
			}
		}
	}
	switch attr.Value.Kind() {
	case slog.KindDuration:
		return slog.Float64(attr.Key, attr.Value.Duration().Seconds())
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(attr.Key, err.Error())
		}
	}
	return attr
}

func levelName(v slog.Value) string {
	if level, ok := v.Any().(slog.Level); ok {
		switch {
		case level >= slog.LevelError:
			return "error"
		case level >= slog.LevelWarn:
			return "warn"
		case level >= slog.LevelInfo:
			return "info"
		default:
			return "debug"
		}
	}
	return v.String()
}

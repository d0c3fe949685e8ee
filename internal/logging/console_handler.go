package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var levelStyles = []struct {
	min   slog.Level
	label string
	color string
}{
	{slog.LevelError, "ERROR", "\x1b[31m"},
	{slog.LevelWarn, "WARN ", "\x1b[33m"},
	{slog.LevelInfo, "INFO ", "\x1b[36m"},
	{slog.LevelDebug - 100, "DEBUG", "\x1b[90m"},
}

// field is one flattened attribute; group names are joined with dots.
type field struct {
	key   string
	value slog.Value
}

// consoleHandler prints a header line per record:
//
//	2026-01-02T15:04:05Z INFO  [job_x/generate] workflow: artifact generated
//	    - attempt: 2
//
// Debug records put their fields on the header line as key=value pairs.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	prefix    string
	bound     []field
	addSource bool
	color     bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), out: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = appendFields(append([]field(nil), h.bound...), h.prefix, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.bound...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.prefix, []slog.Attr{attr})
		return true
	})
	fields = lastWins(fields)

	var component, jobID, stage string
	body := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = render(f.value, false)
			continue
		case FieldJobID:
			jobID = render(f.value, false)
		case FieldStage:
			stage = render(f.value, false)
		}
		body = append(body, f)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteString(" " + h.levelLabel(record.Level) + " ")
	if subject := strings.Trim(jobID+"/"+stage, "/"); subject != "" {
		b.WriteString("[" + subject + "] ")
	}
	if component != "" {
		b.WriteString(component + ": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if src := record.Source(); h.addSource && src != nil && src.File != "" {
		fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
	}

	if record.Level < slog.LevelInfo {
		for _, f := range body {
			b.WriteString(" " + f.key + "=" + render(f.value, true))
		}
		b.WriteByte('\n')
	} else {
		b.WriteByte('\n')
		for _, f := range body {
			if f.key != FieldJobID && f.key != FieldStage {
				b.WriteString("    - " + f.key + ": " + render(f.value, false) + "\n")
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	for _, style := range levelStyles {
		if level < style.min {
			continue
		}
		if h.color {
			return style.color + style.label + "\x1b[0m"
		}
		return style.label
	}
	return level.String()
}

func appendFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			inner := prefix
			if attr.Key != "" {
				inner += attr.Key + "."
			}
			dst = appendFields(dst, inner, value.Group())
			continue
		}
		dst = append(dst, field{key: prefix + attr.Key, value: value})
	}
	return dst
}

// lastWins drops earlier duplicates, keeping the position of the first.
func lastWins(fields []field) []field {
	seen := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, dup := seen[f.key]; dup {
			out[i] = f
			continue
		}
		seen[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func render(v slog.Value, quote bool) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if quote && (s == "" || strings.ContainsAny(s, " \t\n=\"")) {
		return strconv.Quote(s)
	}
	return s
}

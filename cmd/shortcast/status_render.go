package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusKinds = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// statusKindsByValue colors job and artifact states. Anything unlisted is info.
var statusKindsByValue = map[string]statusKind{
	"completed":      statusOK,
	"scheduled":      statusOK,
	"notified":       statusOK,
	"failed":         statusError,
	"cancelled":      statusWarn,
	"upload_pending": statusWarn,
}

var titleCaser = cases.Title(language.English)

// renderStatusLine prints "  Label:               [OK] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusKinds[kind]
	badge := "[" + style.tag + "]"
	if message != "" {
		badge += " " + message
	}
	return paint(labelled(label, badge), style.color, colorize)
}

// labelled left-aligns label in the detail column.
func labelled(label, value string) string {
	return fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", value)
}

func jobStatusKind(status string) statusKind {
	return statusKindsByValue[strings.TrimSpace(status)]
}

// statusLabel renders "upload_pending" as "Upload Pending".
func statusLabel(status string) string {
	words := strings.Fields(strings.ReplaceAll(status, "_", " "))
	if len(words) == 0 {
		return "Unknown"
	}
	return titleCaser.String(strings.Join(words, " "))
}

func renderStatus(status string, colorize bool) string {
	return paint(statusLabel(status), statusKinds[jobStatusKind(status)].color, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(heading, ansiBlue, colorize),
		paint(strings.Repeat("-", len(heading)), ansiBlue, colorize),
	}
}

func paint(value, color string, colorize bool) string {
	if colorize && color != "" {
		return color + value + ansiReset
	}
	return value
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

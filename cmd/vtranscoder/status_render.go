package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"vtranscoder/internal/deps"
	"vtranscoder/internal/state"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
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

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// dependencyLines renders one line per binary. A missing optional binary
// is only a warning since the current settings never invoke it.
func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			} else if dep.Resolved != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Resolved)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
			detail += " (not used by current settings)"
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func progressRows(p state.ProgressSnapshot) [][]string {
	if !p.Active {
		return nil
	}
	rows := [][]string{
		{"File", p.CurrentFile},
		{"Output", p.OutputFile},
		{"Status", p.Status},
		{"Progress", fmt.Sprintf("%.1f%%", p.Percent)},
	}
	if p.FPS > 0 {
		rows = append(rows, []string{"FPS", fmt.Sprintf("%.1f", p.FPS)})
	}
	if eta := time.Duration(p.ETA); eta > 0 {
		rows = append(rows, []string{"ETA", state.FormatDuration(eta)})
	}
	if !p.StartTime.IsZero() {
		rows = append(rows, []string{"Started", p.StartTime.Local().Format("2006-01-02 15:04:05")})
	}
	if p.Subtitles.Active || p.Subtitles.Total > 0 {
		subs := fmt.Sprintf("%d/%d", p.Subtitles.Processed, p.Subtitles.Total)
		if p.Subtitles.Status != "" {
			subs += " " + p.Subtitles.Status
		}
		rows = append(rows, []string{"Subtitles", subs})
	}
	return rows
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

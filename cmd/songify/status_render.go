package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"songify/internal/ipc"
	"songify/internal/preflight"
	"songify/internal/song"
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
	statusLabelWidth = 18
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

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func daemonLines(resp *ipc.StatusResponse, colorize bool) []string {
	if resp == nil {
		return []string{renderStatusLine("Songify", statusError, "Not running", colorize)}
	}
	lines := []string{renderStatusLine("Songify", statusOK, fmt.Sprintf("Running (pid %d)", resp.PID), colorize)}
	if !resp.Running {
		lines[0] = renderStatusLine("Songify", statusWarn, "Pipeline stopped", colorize)
	}
	if resp.BridgeConnected {
		lines = append(lines, renderStatusLine("Extension", statusOK, "Connected via "+resp.BridgeAddress, colorize))
	} else {
		lines = append(lines, renderStatusLine("Extension", statusWarn, "Not connected (listening on "+resp.BridgeAddress+")", colorize))
	}
	lines = append(lines, renderStatusLine("Persistence", statusInfo, resp.PersistenceMode, colorize))
	return lines
}

func requestLines(req ipc.RequestInfo, statusText string, now time.Time, colorize bool) []string {
	if req.ID == "" || req.State == string(song.StateIdle) {
		return []string{renderStatusLine("Song", statusInfo, "No song requested", colorize)}
	}
	kind := statusInfo
	switch {
	case req.LastError != "":
		kind = statusError
	case req.State == string(song.StatePlaying):
		kind = statusOK
	}
	lines := []string{renderStatusLine("Song", kind, statusText, colorize)}
	if req.Style != "" {
		lines = append(lines, renderStatusLine("Style", statusInfo, song.Style(req.Style).Label(), colorize))
	}
	if !req.StartedAt.IsZero() && req.State == string(song.StateWriting) {
		lines = append(lines, renderStatusLine("Elapsed", statusInfo, song.FormatElapsed(now.Sub(req.StartedAt)), colorize))
	}
	if req.AudioURL != "" {
		lines = append(lines, renderStatusLine("Audio", statusInfo, req.AudioURL, colorize))
	}
	return lines
}

func pendingDownloadLine(job *ipc.PendingDownload, now time.Time, colorize bool) string {
	if job == nil {
		return renderStatusLine("Download", statusInfo, "None pending", colorize)
	}
	wait := job.FireAt.Sub(now).Round(time.Second)
	if wait < 0 {
		wait = 0
	}
	return renderStatusLine("Download", statusInfo, fmt.Sprintf("%s in %s", job.Filename, wait), colorize)
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

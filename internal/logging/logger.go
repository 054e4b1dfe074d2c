package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"dcollect/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGray   = "\x1b[90m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

var (
	quotedTokenPattern = regexp.MustCompile(`"[^"]*"`)
	ipTokenPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	numberTokenPattern = regexp.MustCompile(`=(\d+(?:\.\d+)?)(\s|$)`)
)

// New builds the process logger from sink configuration.
// Params: cfg validated logging configuration.
// Returns: slog logger, sink close function, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closeFn := func() {}

	if cfg.Console.Enabled {
		level, err := parseLevel(cfg.Console.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("console sink: %w", err)
		}
		handlers = append(handlers, newSinkHandler(consoleWriter(cfg.Console.Format), cfg.Console.Format, level))
	}

	if cfg.File.Enabled {
		level, err := parseLevel(cfg.File.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		handlers = append(handlers, newSinkHandler(file, cfg.File.Format, level))
		closeFn = func() { _ = file.Close() }
	}

	if len(handlers) == 0 {
		return nil, nil, fmt.Errorf("no logging sinks enabled")
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}

	return slog.New(fanoutHandler{sinks: handlers}), closeFn, nil
}

// consoleWriter selects the stdout writer for the requested format.
// Params: format sink format name.
// Returns: plain stdout for json, colorized line writer otherwise.
func consoleWriter(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return &colorLineWriter{dst: os.Stdout}
}

// newSinkHandler builds one slog handler for a sink.
// Params: dst sink writer; format "line" or "json"; level minimum level.
// Returns: configured slog handler.
func newSinkHandler(dst io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(dst, opts)
	}
	return slog.NewTextHandler(dst, opts)
}

// parseLevel maps config level names to slog levels.
// Params: level lower-case level name.
// Returns: slog level or error for unknown names.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// fanoutHandler duplicates records into every configured sink.
// Params: sinks destination handlers.
// Returns: composite slog handler.
type fanoutHandler struct {
	sinks []slog.Handler
}

// Enabled reports whether any sink accepts the level.
// Params: ctx request context; level record level.
// Returns: true when at least one sink is enabled.
func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range h.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled sink.
// Params: ctx request context; record log record.
// Returns: first sink error encountered.
func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, sink := range h.sinks {
		if !sink.Enabled(ctx, record.Level) {
			continue
		}
		if err := sink.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs forwards attributes to every sink.
// Params: attrs attributes to attach.
// Returns: new composite handler.
func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, sink := range h.sinks {
		sinks[i] = sink.WithAttrs(attrs)
	}
	return fanoutHandler{sinks: sinks}
}

// WithGroup forwards the group to every sink.
// Params: name group name.
// Returns: new composite handler.
func (h fanoutHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, sink := range h.sinks {
		sinks[i] = sink.WithGroup(name)
	}
	return fanoutHandler{sinks: sinks}
}

// colorLineWriter colorizes logfmt lines for console output.
// Params: dst destination writer.
// Returns: io.Writer wrapper.
type colorLineWriter struct {
	dst io.Writer
}

// Write colorizes one log line and forwards it to the destination.
// Params: p raw logfmt line bytes (optionally newline-terminated).
// Returns: reported written length of p and destination write error.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := string(p)
	trailingNewline := strings.HasSuffix(line, "\n")
	if trailingNewline {
		line = strings.TrimSuffix(line, "\n")
	}

	base := levelColor(line)
	if base == "" {
		if _, err := io.WriteString(w.dst, string(p)); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	colored := quotedTokenPattern.ReplaceAllStringFunc(line, func(token string) string {
		return ansiGreen + token + ansiReset + base
	})
	colored = ipTokenPattern.ReplaceAllStringFunc(colored, func(token string) string {
		return ansiCyan + token + ansiReset + base
	})
	colored = numberTokenPattern.ReplaceAllString(colored, "="+ansiYellow+"$1"+ansiReset+base+"$2")

	rendered := base + colored + ansiReset
	if trailingNewline {
		rendered += "\n"
	}

	if _, err := io.WriteString(w.dst, rendered); err != nil {
		return 0, err
	}
	return len(p), nil
}

// levelColor selects the base line color from the level token.
// Params: line raw logfmt line.
// Returns: ansi color for known levels, empty string otherwise.
func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"):
		return ansiRed
	default:
		return ""
	}
}

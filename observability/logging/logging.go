package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tweaks the handler built by Setup.
type Options struct {
	// Level is the minimum level emitted. Defaults to info.
	Level slog.Leveler
	// File, when set, receives the log stream in addition to stdout and is
	// rotated by size.
	File string
	// MaxSizeMB bounds a log file before it is rotated. Defaults to 100.
	MaxSizeMB int
	// Output overrides stdout. Used by tests.
	Output io.Writer
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided. The "dev" environment
// switches stdout to a colourised console handler.
func Setup(service, env string, opts Options) *slog.Logger {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	env = strings.TrimSpace(env)

	var handler slog.Handler
	if strings.EqualFold(env, "dev") && opts.Output == nil && opts.File == "" {
		handler = tint.NewHandler(out, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		if file := strings.TrimSpace(opts.File); file != "" {
			maxSize := opts.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 100
			}
			out = io.MultiWriter(out, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    maxSize,
				MaxBackups: 5,
				Compress:   true,
			})
		}
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource: false,
			Level:     level,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == slog.TimeKey {
					return slog.Attr{Key: "timestamp", Value: attr.Value}
				}
				if attr.Key == slog.LevelKey {
					level := strings.ToUpper(attr.Value.String())
					return slog.String("severity", level)
				}
				if attr.Key == slog.MessageKey {
					return slog.Attr{Key: "message", Value: attr.Value}
				}
				return attr
			},
		})
	}

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Logger is the logging interface handed to codec sessions and commands.
// Codecs never reach for a global logger; the caller injects one.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// handlerLogger adapts *slog.Logger to Logger. The level methods come from
// the embedded logger.
type handlerLogger struct {
	*slog.Logger
}

func (l handlerLogger) With(args ...any) Logger {
	return handlerLogger{l.Logger.With(args...)}
}

func (l handlerLogger) WithGroup(name string) Logger {
	return handlerLogger{l.Logger.WithGroup(name)}
}

// New wraps an arbitrary slog handler.
func New(h slog.Handler) Logger {
	return handlerLogger{slog.New(h)}
}

// Nop returns a Logger that discards everything. It is the default for codec
// sessions opened without a logger.
func Nop() Logger {
	return New(slog.DiscardHandler)
}

// JSON logs one object per line with source locations.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

// Pretty logs colored single lines for interactive use.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// Format selects the record encoding used by Open.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
	FormatText   Format = "text"
)

// Options describes a process logger.
type Options struct {
	Format Format
	Level  slog.Level
	// File, when set, sends JSON records to a size-rotated file and
	// Format is ignored.
	File      string
	MaxSizeMB int
	// Output defaults to stderr.
	Output io.Writer
}

// Open builds the process logger. The returned closer is nil unless a log
// file was opened.
func Open(opts Options) (Logger, io.Closer, error) {
	if opts.File != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 64
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    size,
			MaxBackups: 5,
			Compress:   true,
		}
		return JSON(lj, opts.Level), lj, nil
	}

	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	switch opts.Format {
	case FormatPretty, "":
		return Pretty(w, opts.Level), nil, nil
	case FormatJSON:
		return JSON(w, opts.Level), nil, nil
	case FormatText:
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})), nil, nil
	}
	return nil, nil, fmt.Errorf("logger: unknown format %q", opts.Format)
}

type loggerKey struct{}

// WithContext stores l for FromContext.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by WithContext, or an info level
// pretty logger on stderr.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Pretty(os.Stderr, slog.LevelInfo)
}

// ParseLevel accepts slog level names in any case ("warn", "INFO+2") and the
// alias "warning".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logger: %w", err)
	}
	return level, nil
}

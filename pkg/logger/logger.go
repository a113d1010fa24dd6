// Package logger is a thin structured-logging facade over log/slog. Records
// are one JSON object per line; call-site attributes are nested under
// "fields" so the top level stays fixed: timestamp, level, message, caller.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError

	levelOff = slog.LevelError + 8
)

// ParseLevel maps LOG_LEVEL values onto a Level. Anything unrecognised is
// info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one structured attribute.
type Field = slog.Attr

func F(key string, value any) Field { return slog.Any(key, value) }

func String(key, value string) Field      { return slog.String(key, value) }
func Int(key string, value int) Field     { return slog.Int(key, value) }
func Int64(key string, value int64) Field { return slog.Int64(key, value) }
func Bool(key string, value bool) Field   { return slog.Bool(key, value) }

// Err records err under "error" as its message.
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// Duration is rendered as "1.5s" rather than nanoseconds.
func Duration(key string, d time.Duration) Field { return slog.String(key, d.String()) }

func Time(key string, t time.Time) Field { return slog.String(key, t.Format(time.RFC3339)) }

// Domain fields.
func UserID(id string) Field        { return String("user_id", id) }
func QuizID(id string) Field        { return String("quiz_id", id) }
func LessonID(id string) Field      { return String("lesson_id", id) }
func VocabularyID(id string) Field  { return String("vocabulary_id", id) }
func BadgeID(id string) Field       { return String("badge_id", id) }
func XPAmount(xp int) Field         { return Int("xp_amount", xp) }
func Streak(days int) Field         { return Int("streak", days) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// Options configures New.
type Options struct {
	Output    io.Writer // stdout when nil
	Level     Level
	AddCaller bool
}

// Logger is safe for concurrent use; children made by With share the
// parent's writer.
type Logger struct {
	h         slog.Handler
	addCaller bool
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddCaller,
		ReplaceAttr: renameBuiltins,
	})
	return &Logger{h: h.WithGroup("fields"), addCaller: opts.AddCaller}
}

// renameBuiltins sets the top-level key names and shortens the source
// location to file:line.
func renameBuiltins(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.MessageKey:
		a.Key = "message"
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok {
			a = slog.String("caller", filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return a
}

// Default logs INFO and above to stdout with callers.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// Nop discards everything.
func Nop() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// With returns a child that adds fields to every record.
func (l *Logger) With(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{h: l.h.WithAttrs(fields), addCaller: l.addCaller}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.h.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	if l.addCaller {
		// Skip runtime.Callers, log and the exported level method.
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(fields...)
	_ = l.h.Handle(ctx, r)
}

type ctxKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or fallback.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback
}

package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event names attached to levels that zap does not model directly.
const (
	EventSuccess  = "success"
	EventScrape   = "scrape"
	EventProgress = "progress"
	EventSkip     = "skip"
)

// Logger is the leveled logger drivers write to. A nil *Logger discards everything,
// and no method returns an error.
type Logger struct {
	z *zap.Logger
}

// NewLogger wraps z. A nil z yields a no-op logger.
func NewLogger(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Named returns a child logger tagged with a site name.
func (l *Logger) Named(site string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{z: l.z.With(zap.String("site", site))}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{z: l.z.With(fields...)}
}

// Zap exposes the underlying logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, "", msg, fields)
}

func (l *Logger) Success(msg string, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, EventSuccess, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.log(zapcore.WarnLevel, "", msg, fields)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.log(zapcore.ErrorLevel, "", msg, fields)
}

// Scrape logs one outbound request.
func (l *Logger) Scrape(msg string, fields ...zap.Field) {
	l.log(zapcore.DebugLevel, EventScrape, msg, fields)
}

// Progress logs search-unit progress.
func (l *Logger) Progress(msg string, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, EventProgress, msg, fields)
}

// Skip logs a record or unit that was deliberately dropped.
func (l *Logger) Skip(msg string, fields ...zap.Field) {
	l.log(zapcore.DebugLevel, EventSkip, msg, fields)
}

func (l *Logger) log(level zapcore.Level, event, msg string, fields []zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}
	extra := make([]zap.Field, 0, len(fields)+2)
	if event != "" {
		extra = append(extra, zap.String("event", event))
	}
	if e := Elapsed(); e > 0 {
		extra = append(extra, zap.Duration("elapsed", e.Round(time.Millisecond)))
	}
	ce.Write(append(extra, fields...)...)
}

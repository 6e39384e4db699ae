package rlmlog

import (
	"github.com/kataras/golog"
)

// GologLogger implements Logger on top of github.com/kataras/golog.
type GologLogger struct {
	logger *golog.Logger
	level  Level
}

var _ Logger = (*GologLogger)(nil)

// New creates a Logger with the given initial level, using a fresh
// golog.Logger with the given prefix (e.g. "rlm: ").
func New(prefix string, level Level) *GologLogger {
	l := golog.New()
	l.SetPrefix(prefix)
	g := &GologLogger{logger: l}
	g.SetLevel(level)
	return g
}

// NewFromGolog wraps an existing golog.Logger.
func NewFromGolog(logger *golog.Logger) *GologLogger {
	g := &GologLogger{logger: logger}
	g.SetLevel(LevelInfo)
	return g
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LevelDebug {
		l.logger.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LevelInfo {
		l.logger.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LevelWarn {
		l.logger.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LevelError {
		l.logger.Errorf(format, v...)
	}
}

func (l *GologLogger) SetLevel(level Level) {
	l.level = level

	gologLevel := "info"
	switch level {
	case LevelDebug:
		gologLevel = "debug"
	case LevelInfo:
		gologLevel = "info"
	case LevelWarn:
		gologLevel = "warn"
	case LevelError:
		gologLevel = "error"
	case LevelNone:
		gologLevel = "disable"
	}
	l.logger.SetLevel(gologLevel)
}

package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger provides structured, leveled logging throughout the application.
// Messages are printf-style; fields attached with With travel with every line.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a text Logger at INFO level writing to stdout.
func NewLogger() *Logger {
	return NewLoggerWithOptions(os.Stdout, "info", "text")
}

// NewLoggerWithOptions builds a Logger for the given writer, level name and
// format ("text" or "json"). Unknown levels fall back to INFO.
func NewLoggerWithOptions(w io.Writer, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(w)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child Logger carrying an extra field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

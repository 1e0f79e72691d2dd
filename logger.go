package mycache

import (
	"github.com/sirupsen/logrus"
)

// Logger is a minimal chainable logging seam so library code never calls
// the bare log package directly. The group orchestrator, the peer pool
// and Discovery accept one (GroupOptions.Logger, PeerPoolOptions.Logger,
// NewDiscovery), defaulting to a logrus-backed instance when nil. The
// circuit breaker and the disk cache take no Logger and do not log.
type Logger interface {
	Error() Logger
	Warn() Logger
	Info() Logger
	Debug() Logger

	// ErrorField attaches an error value under label.
	ErrorField(label string, err error) Logger
	// StringField attaches a string value under label.
	StringField(label string, val string) Logger
	// WithFields attaches several key/value pairs at once.
	WithFields(fields map[string]interface{}) Logger

	// Printf emits the entry at the level selected by the last Error/
	// Warn/Info/Debug call (Info if none was called).
	Printf(format string, args ...interface{})
}

// logrusLogger is the default Logger, wrapping a *logrus.Entry.
type logrusLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

// NewLogrusLogger wraps l (or a freshly constructed logrus.New() when l
// is nil) as a Logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
	}
	return logrusLogger{entry: logrus.NewEntry(l), level: logrus.InfoLevel}
}

func (l logrusLogger) Error() Logger { return logrusLogger{entry: l.entry, level: logrus.ErrorLevel} }
func (l logrusLogger) Warn() Logger  { return logrusLogger{entry: l.entry, level: logrus.WarnLevel} }
func (l logrusLogger) Info() Logger  { return logrusLogger{entry: l.entry, level: logrus.InfoLevel} }
func (l logrusLogger) Debug() Logger { return logrusLogger{entry: l.entry, level: logrus.DebugLevel} }

func (l logrusLogger) ErrorField(label string, err error) Logger {
	return logrusLogger{entry: l.entry.WithField(label, err), level: l.level}
}

func (l logrusLogger) StringField(label string, val string) Logger {
	return logrusLogger{entry: l.entry.WithField(label, val), level: l.level}
}

func (l logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return logrusLogger{entry: l.entry.WithFields(fields), level: l.level}
}

func (l logrusLogger) Printf(format string, args ...interface{}) {
	l.entry.Logf(l.level, format, args...)
}

// defaultLogger returns l, or a fresh logrus-backed Logger when l is nil.
func defaultLogger(l Logger) Logger {
	if l == nil {
		return NewLogrusLogger(nil)
	}
	return l
}

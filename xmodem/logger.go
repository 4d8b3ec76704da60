package xmodem

import "github.com/sirupsen/logrus"

// Logger is the diagnostic sink the session controller writes to. It never
// writes to stdout/stderr directly so hosts can route transfer logs
// wherever they like.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NoopLogger discards everything. Useful for tests and for embedding the
// package as a library without wiring a logger.
type NoopLogger struct{}

func (NoopLogger) Debugf(format string, args ...interface{}) {}
func (NoopLogger) Infof(format string, args ...interface{})  {}
func (NoopLogger) Errorf(format string, args ...interface{}) {}

// logrusLogger adapts a *logrus.Logger (or *logrus.Entry) to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l, attaching a "component=xmodem" field to every
// entry so transfer logs are easy to filter out of a host's wider log
// stream.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: l.WithField("component", "xmodem")}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

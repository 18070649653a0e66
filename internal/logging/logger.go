// Package logging provides the Logger abstraction used throughout the
// node. It mirrors the small leveled-logging interface the teacher
// repository's definition.DefaultLogger exposes, backed by logrus
// instead of the plain standard-library logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logging interface every component depends on.
// Keeping it as an interface (rather than *logrus.Entry directly)
// lets tests substitute a no-op or recording implementation without
// dragging logrus into their import graph.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	// With returns a derived Logger that always attaches the given
	// fields, used to pin a component name or peer id into every
	// subsequent record (the same role the Python NodeLogger adapter
	// plays by injecting node_id into every record).
	With(fields map[string]interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds the node's root Logger. levelName is one of the closed
// set DEBUG/INFO/WARNING/ERROR/CRITICAL (validated by internal/config
// before this is called); logFile, when non-empty, mirrors every
// record to that file in addition to stderr.
func New(nodeID string, levelName string, logFile string) (Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	base.SetLevel(level)

	out := io.Writer(os.Stderr)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	base.SetOutput(out)

	return &logrusLogger{entry: logrus.NewEntry(base).WithField("node_id", nodeID)}, nil
}

// parseLevel maps the spec's closed LOG_LEVEL set onto logrus levels.
// CRITICAL has no direct logrus equivalent; it is treated as Fatal
// severity for filtering purposes (logrus.FatalLevel).
func parseLevel(name string) (logrus.Level, error) {
	switch name {
	case "DEBUG":
		return logrus.DebugLevel, nil
	case "INFO":
		return logrus.InfoLevel, nil
	case "WARNING":
		return logrus.WarnLevel, nil
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "CRITICAL":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, errInvalidLevel(name)
	}
}

type errInvalidLevel string

func (e errInvalidLevel) Error() string {
	return "logging: invalid level " + string(e)
}

func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) With(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

// NewNop returns a Logger that discards everything, for use in tests
// that don't want to assert on log output but still need to satisfy
// the Logger dependency.
func NewNop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

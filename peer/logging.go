package peer

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// LoggerFactory routes pion's internal logging into logrus, one entry per
// pion scope (ice, dtls, pc, ...).
type LoggerFactory struct {
	Logger *logrus.Logger
}

func NewLoggerFactory(logger *logrus.Logger) *LoggerFactory {
	return &LoggerFactory{Logger: logger}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	logger := f.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &leveledLogger{entry: logger.WithField("scope", scope)}
}

type leveledLogger struct {
	entry *logrus.Entry
}

func (l *leveledLogger) Trace(msg string)                  { l.entry.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...any) { l.entry.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                  { l.entry.Debug(msg) }
func (l *leveledLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *leveledLogger) Info(msg string)                   { l.entry.Info(msg) }
func (l *leveledLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *leveledLogger) Warn(msg string)                   { l.entry.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                  { l.entry.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

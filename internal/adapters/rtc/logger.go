package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging into zerolog. pion is chatty
// at debug, so its messages are shifted one level down unless verbose.
type loggerFactory struct {
	verbose bool
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{
		log:     log.With().Str("module", "pion").Str("scope", scope).Logger(),
		verbose: f.verbose,
	}
}

type pionLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l *pionLogger) quiet(lvl zerolog.Level) zerolog.Level {
	if l.verbose || lvl >= zerolog.WarnLevel {
		return lvl
	}
	return zerolog.TraceLevel
}

func (l *pionLogger) emit(lvl zerolog.Level, msg string) {
	l.log.WithLevel(l.quiet(lvl)).Msg(msg)
}

func (l *pionLogger) Trace(msg string) { l.emit(zerolog.TraceLevel, msg) }
func (l *pionLogger) Tracef(format string, args ...any) {
	l.emit(zerolog.TraceLevel, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Debug(msg string) { l.emit(zerolog.DebugLevel, msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	l.emit(zerolog.DebugLevel, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Info(msg string) { l.emit(zerolog.InfoLevel, msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.emit(zerolog.InfoLevel, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Warn(msg string) { l.emit(zerolog.WarnLevel, msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	l.emit(zerolog.WarnLevel, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Error(msg string) { l.emit(zerolog.ErrorLevel, msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	l.emit(zerolog.ErrorLevel, fmt.Sprintf(format, args...))
}

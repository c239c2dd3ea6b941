package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped zerolog logger. Every service constructs its
// own via New("ComponentName") so log lines can be traced back to the layer
// that emitted them.
type Logger struct {
	*zerolog.Logger
	component string
}

var envLevels = map[string]zerolog.Level{
	"development": zerolog.DebugLevel,
	"staging":     zerolog.InfoLevel,
	"production":  zerolog.InfoLevel,
}

func New(component string) *Logger {
	env := os.Getenv("APP_ENV")

	zerolog.TimeFieldFormat = time.RFC3339

	output := zerolog.ConsoleWriter{
		Out: os.Stdout,
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
	}
	if env == "production" {
		output.TimeFormat = ""
	} else {
		output.TimeFormat = "2006-01-02 15:04:05"
	}

	l := zerolog.New(output).Level(levelFor(env)).With().Timestamp().Logger()
	return &Logger{Logger: &l, component: component}
}

func levelFor(env string) zerolog.Level {
	if level, ok := envLevels[env]; ok {
		return level
	}
	return zerolog.DebugLevel
}

func (l *Logger) LogDebugf(format string, v ...interface{}) { l.Debug().Msgf(format, v...) }
func (l *Logger) LogInfof(format string, v ...interface{})  { l.Info().Msgf(format, v...) }
func (l *Logger) LogWarnf(format string, v ...interface{})  { l.Warn().Msgf(format, v...) }
func (l *Logger) LogErrorf(format string, v ...interface{}) { l.Error().Msgf(format, v...) }

func (l *Logger) LogInfo(msg string) { l.Info().Msg(msg) }

package helpers

import (
	"fmt"
	"os"
	"time"

	"sjsage522/placereview/logger"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(component string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger forwards to the structured logger and, when errorFile is set,
// appends failures to it so failed jobs survive log rotation.
type Logger struct {
	errorFile string
	log       *logger.Logger
}

// NewLogger creates a new logger instance
func NewLogger(errorFile string, log *logger.Logger) *Logger {
	return &Logger{
		errorFile: errorFile,
		log:       log,
	}
}

// LogError logs an error with the component name and, if configured,
// appends it to the error file with a timestamp
func (l *Logger) LogError(component string, err error) {
	if l.log != nil {
		l.log.Error().Str("component", component).Err(err).Msg("Error recorded")
	}
	if l.errorFile == "" {
		return
	}

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		if l.log != nil {
			l.log.Warn().Err(fileErr).Str("file", l.errorFile).Msg("파일 열기 오류")
		}
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, component, err.Error())
}

// LogInfo logs an informational message
func (l *Logger) LogInfo(format string, args ...interface{}) {
	if l.log != nil {
		l.log.Info().Msgf(format, args...)
	}
}

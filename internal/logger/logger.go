package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dumpwatch/internal/config"

	"github.com/rs/zerolog"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level files and the console.
type Logger struct {
	debugLog   zerolog.Logger
	infoLog    zerolog.Logger
	warningLog zerolog.Logger
	errorLog   zerolog.Logger
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := &Logger{
		logDir: config.LogDirectory,
	}

	logger.setupLoggers(level)
	return logger
}

// NewWithWriter returns a Logger that sends every level to w. Used by the CLI and tests.
func NewWithWriter(w io.Writer) *Logger {
	base := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{
		debugLog:   base,
		infoLog:    base,
		warningLog: base,
		errorLog:   base,
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	nop := zerolog.Nop()
	return &Logger{debugLog: nop, infoLog: nop, warningLog: nop, errorLog: nop}
}

func (l *Logger) setupLoggers(level zerolog.Level) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	consoleErr := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}

	infoFile := l.openLogFile(filepath.Join(l.logDir, "info.log"))
	warningFile := l.openLogFile(filepath.Join(l.logDir, "warning.log"))
	errorFile := l.openLogFile(filepath.Join(l.logDir, "error.log"))

	newLevelLogger := func(w io.Writer) zerolog.Logger {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	l.debugLog = newLevelLogger(console)
	l.infoLog = newLevelLogger(zerolog.MultiLevelWriter(console, infoFile))
	l.warningLog = newLevelLogger(zerolog.MultiLevelWriter(console, warningFile))
	l.errorLog = newLevelLogger(zerolog.MultiLevelWriter(consoleErr, errorFile))
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Debug writes a formatted debug-level entry to the console only.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.debugLog.Debug().Msg(fmt.Sprintf(format, v...))
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Info().Msg(fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Warn().Msg(fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Error().Msg(fmt.Sprintf(format, v...))
}

// Camera returns a child logger whose entries carry the camera id.
func (l *Logger) Camera(cameraID string) *Logger {
	with := func(z zerolog.Logger) zerolog.Logger {
		return z.With().Str("camera", cameraID).Logger()
	}
	return &Logger{
		debugLog:   with(l.debugLog),
		infoLog:    with(l.infoLog),
		warningLog: with(l.warningLog),
		errorLog:   with(l.errorLog),
		logDir:     l.logDir,
	}
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("File %s has been cleared.", fileName)
	return nil
}

package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Level names double as log file base names.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Logger provides leveled logging (info/warning/error) to per-level files and a
// colored console handler.
type Logger struct {
	console    *slog.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      []*os.File
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		logDir: logDir,
		console: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.TimeOnly,
		})),
	}

	infoFile, err := l.openLogFile(LevelInfo)
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile(LevelWarning)
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile(LevelError)
	if err != nil {
		l.Close()
		return nil, err
	}

	l.infoLog = log.New(infoFile, "INFO    ", log.Ldate|log.Ltime)
	l.warningLog = log.New(warningFile, "WARNING ", log.Ldate|log.Ltime)
	l.errorLog = log.New(errorFile, "ERROR   ", log.Ldate|log.Ltime)
	return l, nil
}

// NewDiscard returns a Logger that only writes to io.Discard. Useful in tests and CLIs.
func NewDiscard() *Logger {
	return &Logger{
		console:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		infoLog:    log.New(io.Discard, "", 0),
		warningLog: log.New(io.Discard, "", 0),
		errorLog:   log.New(io.Discard, "", 0),
	}
}

// NewConsole returns a Logger writing only to the console handler.
func NewConsole() *Logger {
	l := NewDiscard()
	l.console = slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.TimeOnly}))
	return l
}

func (l *Logger) openLogFile(level string) (*os.File, error) {
	filename := filepath.Join(l.logDir, level+".log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console.Info(msg)
	l.infoLog.Print(msg)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console.Warn(msg)
	l.warningLog.Print(msg)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console.Error(msg)
	l.errorLog.Print(msg)
}

// Dir returns the directory log files are written to.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the log file of the given level.
func (l *Logger) CleanLogs(level string) error {
	if l.logDir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	filePath := filepath.Join(l.logDir, level+".log")
	if err := os.Truncate(filePath, 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", filePath, err)
	}
	return nil
}

// Close closes the underlying log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

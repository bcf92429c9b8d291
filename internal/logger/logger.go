package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const timeFormat = "2006-01-02 15:04:05"

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	format       = "text"
	output       io.Writer = os.Stdout
	logger                 = build()
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func build() zerolog.Logger {
	var w io.Writer = output
	if format != "json" {
		w = zerolog.ConsoleWriter{
			Out:          output,
			TimeFormat:   timeFormat,
			TimeLocation: time.Local,
			NoColor:      true,
		}
	}
	return zerolog.New(w).Level(currentLevel.zerolog()).With().Timestamp().Logger()
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
	logger = build()
}

// SetFormat selects "text" (console) or "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.ToLower(f) == "json" {
		format = "json"
	} else {
		format = "text"
	}
	logger = build()
}

// SetOutput selects "stdout", "stderr" or a file path (appended to).
func SetOutput(target string) error {
	var w io.Writer
	switch strings.ToLower(target) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	SetWriter(w)
	return nil
}

// SetWriter redirects output to w.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	logger = build()
}

// Logger returns the structured logger for callers attaching fields.
func Logger() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// Enabled reports whether messages at level are emitted.
func Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= currentLevel
}

func log(level Level, format string, v ...any) {
	if !Enabled(level) {
		return
	}
	l := Logger()
	l.WithLevel(level.zerolog()).Msgf(format, v...)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}

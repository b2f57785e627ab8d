package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	once   sync.Once
	logger *log.Logger
	level  atomic.Int32
)

func init() {
	level.Store(int32(LevelInfo))
}

func Init() {
	once.Do(func() {
		logger = log.New(os.Stdout, "WEATHER_ETL: ", log.LstdFlags|log.LUTC|log.Lshortfile)
	})
}

// SetOutput redirects the package logger, mainly for tests.
func SetOutput(w io.Writer) {
	Init()
	logger.SetOutput(w)
}

// SetLevel parses debug|info|warn|error; unknown values keep info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Store(int32(LevelDebug))
	case "warn", "warning":
		level.Store(int32(LevelWarn))
	case "error":
		level.Store(int32(LevelError))
	default:
		level.Store(int32(LevelInfo))
	}
}

func enabled(l Level) bool {
	return int32(l) >= level.Load()
}

func output(l Level, prefix, message string, v ...interface{}) {
	if !enabled(l) {
		return
	}
	Init()
	// depth 3: output -> Info/Component.Info -> caller
	_ = logger.Output(3, prefixFor(l)+prefix+sprintf(message, v...))
}

func prefixFor(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG: "
	case LevelWarn:
		return "WARN: "
	case LevelError:
		return "ERROR: "
	}
	return "INFO: "
}

func Info(message string, v ...interface{}) {
	output(LevelInfo, "", message, v...)
}

func Warn(message string, v ...interface{}) {
	output(LevelWarn, "", message, v...)
}

func Error(message string, v ...interface{}) {
	output(LevelError, "", message, v...)
}

func Debug(message string, v ...interface{}) {
	output(LevelDebug, "", message, v...)
}

// Logger prefixes every line with a component name.
type Logger struct {
	prefix string
}

// Component returns a logger whose lines start with "[name] ".
func Component(name string) *Logger {
	return &Logger{prefix: "[" + name + "] "}
}

func (l *Logger) Info(message string, v ...interface{}) {
	output(LevelInfo, l.prefix, message, v...)
}

func (l *Logger) Warn(message string, v ...interface{}) {
	output(LevelWarn, l.prefix, message, v...)
}

func (l *Logger) Error(message string, v ...interface{}) {
	output(LevelError, l.prefix, message, v...)
}

func (l *Logger) Debug(message string, v ...interface{}) {
	output(LevelDebug, l.prefix, message, v...)
}

func sprintf(message string, v ...interface{}) string {
	if len(v) == 0 {
		return message
	}
	return fmt.Sprintf(message, v...)
}

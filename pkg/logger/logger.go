// Package logger provides leveled, structured key/value logging for the
// benchflow engine. Components obtain child loggers via WithField so that
// every line carries the component and run context it belongs to.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name into a LogLevel. Unknown names fall back
// to INFO and return an error.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

type Logger struct {
	level  LogLevel
	logger *log.Logger
	fields map[string]interface{}
}

type Config struct {
	Level  LogLevel
	Output io.Writer
}

func New() *Logger {
	return NewWithConfig(Config{Level: INFO, Output: os.Stdout})
}

func NewWithConfig(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Logger{
		level:  config.Level,
		logger: log.New(config.Output, "", 0),
		fields: make(map[string]interface{}),
	}
}

// WithFields creates a child logger carrying extra key/value context that is
// attached to every subsequent line.
func (l *Logger) WithFields(keyVals ...interface{}) *Logger {
	child := &Logger{
		level:  l.level,
		logger: l.logger,
		fields: make(map[string]interface{}, len(l.fields)+len(keyVals)/2),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		child.fields[fmt.Sprintf("%v", keyVals[i])] = keyVals[i+1]
	}
	return child
}

// WithField creates a child logger with one extra bit of context, e.g.
// "component=sequencer" or "run=<id>".
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(key, value)
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(DEBUG, msg, keyVals...)
}

func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.log(INFO, msg, keyVals...)
}

func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.log(WARN, msg, keyVals...)
}

func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.log(ERROR, msg, keyVals...)
}

func (l *Logger) Fatal(msg string, keyVals ...interface{}) {
	l.log(ERROR, msg, keyVals...)
	os.Exit(1)
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Logger) GetLevel() LogLevel {
	return l.level
}

func (l *Logger) IsDebugEnabled() bool {
	return l.level <= DEBUG
}

func (l *Logger) log(level LogLevel, msg string, keyVals ...interface{}) {
	if level < l.level {
		return
	}

	fields := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		fields[fmt.Sprintf("%v", keyVals[i])] = keyVals[i+1]
	}

	l.logger.Print(formatLine(time.Now(), level, msg, fields))
}

// formatLine renders "[ts] [LEVEL] msg | k=v ...". Fields are sorted by key
// so output is stable across runs.
func formatLine(ts time.Time, level LogLevel, msg string, fields map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02T15:04:05.000Z07:00"), level, msg))

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%s", k, formatValue(fields[k])))
		}
	}
	return b.String()
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, " ") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// global logger for package-level convenience calls
var globalLogger = New()

func Debug(msg string, keyVals ...interface{}) { globalLogger.Debug(msg, keyVals...) }
func Info(msg string, keyVals ...interface{})  { globalLogger.Info(msg, keyVals...) }
func Warn(msg string, keyVals ...interface{})  { globalLogger.Warn(msg, keyVals...) }
func Error(msg string, keyVals ...interface{}) { globalLogger.Error(msg, keyVals...) }
func Fatal(msg string, keyVals ...interface{}) { globalLogger.Fatal(msg, keyVals...) }

func WithField(key string, value interface{}) *Logger {
	return globalLogger.WithField(key, value)
}

func WithFields(keyVals ...interface{}) *Logger {
	return globalLogger.WithFields(keyVals...)
}

func SetLevel(level LogLevel) {
	globalLogger.SetLevel(level)
}

// Package logging provides simple leveled logging for the cowjournal project
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Logger wraps stdlib log with level support, optional JSON output, and
// chainable context fields (With*) carried into every subsequent call.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string
	noColor bool
	fields  []any

	mu sync.Mutex
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel
	Output io.Writer

	// Format selects the line encoding: "text" (default) or "json".
	Format string

	// Sync documents that the caller wants every write to reach Output
	// immediately; *log.Logger already writes synchronously, so this has
	// no effect today but is accepted for forward compatibility with a
	// buffered writer.
	Sync bool

	// NoColor force-disables ANSI color codes on the level prefix. Text
	// format only, ignored for JSON. Leaving it false still only colors
	// output that NewLogger detects as an attached terminal.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Format: "text",
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	noColor := config.NoColor
	if !noColor {
		if f, ok := output.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
			noColor = true
		}
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: noColor,
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// with returns a copy of l carrying kv appended to its existing fields.
// A fresh Logger is built field-by-field rather than copying *l by value,
// so clones never share l's mutex.
func (l *Logger) with(kv ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{
		logger:  l.logger,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		fields:  fields,
	}
}

// WithDevice returns a logger that tags every subsequent line with the
// device ring index it concerns, matching DeviceRing's own dev int.
func (l *Logger) WithDevice(idx int) *Logger {
	return l.with("device_id", idx)
}

// WithSeq returns a logger that tags every subsequent line with a
// journal sequence number.
func (l *Logger) WithSeq(seq uint64) *Logger {
	return l.with("seq", seq)
}

// WithOp returns a logger that tags every subsequent line with the
// consumer-API operation name (matching journal.Error.Op, e.g. "res_get").
func (l *Logger) WithOp(op string) *Logger {
	return l.with("op", op)
}

// WithError returns a logger that tags every subsequent line with err.
func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err)
}

// formatArgs converts key-value pairs to a string
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

var levelColor = map[LogLevel]string{
	LevelDebug: "\x1b[36m",
	LevelInfo:  "\x1b[32m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
}

const colorReset = "\x1b[0m"

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}

	allArgs := args
	if len(l.fields) > 0 {
		allArgs = make([]any, 0, len(l.fields)+len(args))
		allArgs = append(allArgs, l.fields...)
		allArgs = append(allArgs, args...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.logger.Println(l.encodeJSON(level, prefix, msg, allArgs))
		return
	}

	shownPrefix := prefix
	if !l.noColor {
		if c, ok := levelColor[level]; ok {
			shownPrefix = c + prefix + colorReset
		}
	}
	l.logger.Printf("%s %s%s", shownPrefix, msg, formatArgs(allArgs))
}

func (l *Logger) encodeJSON(level LogLevel, prefix, msg string, args []any) string {
	entry := map[string]any{
		"level": strings.ToLower(strings.Trim(prefix, "[]")),
		"msg":   msg,
	}
	for i := 0; i+1 < len(args); i += 2 {
		v := args[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[fmt.Sprint(args[i])] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf("%s %s (json marshal failed: %v)", prefix, msg, err)
	}
	return string(data)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR]", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

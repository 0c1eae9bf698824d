package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

type Options struct {
	Level    Level
	Console  io.Writer
	FilePath string
}

// sink is shared by a logger and all of its named children.
type sink struct {
	mu      sync.Mutex
	level   Level
	writer  io.Writer
	console io.Writer
	file    *os.File
	now     func() time.Time
}

type Logger struct {
	*sink
	name string
}

func ParseLevel(value string) (Level, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return LevelInfo, nil
	}
	level, ok := levelNames[value]
	if !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	s := &sink{level: opts.Level, writer: console, console: console, now: time.Now}

	if filePath := strings.TrimSpace(opts.FilePath); filePath != "" {
		if dir := filepath.Dir(filePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("creating log directory: %w", err)
			}
		}
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		s.file = f
		s.writer = io.MultiWriter(console, f)
	}

	return &Logger{sink: s}, nil
}

// Discard returns a logger that drops everything. Packages use it when the
// caller did not supply one.
func Discard() *Logger {
	return &Logger{sink: &sink{level: LevelError + 1, writer: io.Discard, console: io.Discard, now: time.Now}}
}

// Named returns a child logger whose lines are tagged with name. Children
// share the parent's level, outputs and file handle.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &Logger{sink: l.sink, name: name}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.writer = l.console
		return err
	}
	return nil
}

func (l *Logger) ConsoleWriter() io.Writer {
	return l.console
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	message := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	var line string
	if l.name != "" {
		line = fmt.Sprintf("%s [%s] %s: %s\n", l.now().UTC().Format(time.RFC3339), level, l.name, message)
	} else {
		line = fmt.Sprintf("%s [%s] %s\n", l.now().UTC().Format(time.RFC3339), level, message)
	}
	_, _ = io.WriteString(l.writer, line)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

type writerAdapter struct {
	logger *Logger
	level  Level
}

func (w writerAdapter) Write(p []byte) (int, error) {
	if len(p) == 0 || w.logger == nil {
		return len(p), nil
	}
	text := strings.ReplaceAll(string(p), "\r", "")
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			w.logger.logf(w.level, "%s", trimmed)
		}
	}
	return len(p), nil
}

// Writer adapts the logger to an io.Writer, logging each non-blank line at
// level. Used to route library output such as HTTP server errors.
func (l *Logger) Writer(level Level) io.Writer {
	return writerAdapter{logger: l, level: level}
}

// Package pshelllog is the ambient logging facility shared by the shell
// server, control client, and trace filter packages. It is deliberately
// small: named loggers gated by level, colorized tags, and an optional
// ring buffer for recent-history dumps.
package pshelllog

import (
	"fmt"
	"io"
	golog "log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return "Level(" + strconv.Itoa(int(l)) + ")"
}

// ParseLevel returns the log level named by s.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return -1, fmt.Errorf("invalid log level: %q", s)
}

var (
	tagColor = map[Level]*color.Color{
		DEBUG: color.New(color.FgBlue),
		INFO:  color.New(color.FgGreen),
		WARN:  color.New(color.FgYellow),
		ERROR: color.New(color.FgRed),
		FATAL: color.New(color.FgRed, color.Bold),
	}
)

type logger struct {
	out     *golog.Logger
	level   Level
	color   bool
	filters []string
}

var (
	mu      sync.RWMutex
	loggers = make(map[string]*logger)
)

// AddLogger registers a named logger writing to out at the given level.
// If useColor is true, level tags are colorized unless fatih/color's global
// color.NoColor setting disables color; out itself is not inspected.
func AddLogger(name string, out io.Writer, level Level, useColor bool) {
	mu.Lock()
	defer mu.Unlock()

	loggers[name] = &logger{
		out:   golog.New(out, "", golog.LstdFlags),
		level: level,
		color: useColor,
	}
}

// DelLogger removes a previously registered logger.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(loggers, name)
}

// SetLevel changes the level for a named logger.
func SetLevel(name string, level Level) error {
	mu.Lock()
	defer mu.Unlock()
	l, ok := loggers[name]
	if !ok {
		return fmt.Errorf("logger %q does not exist", name)
	}
	l.level = level
	return nil
}

// SetFilter adds a substring filter to a named logger: lines containing the
// substring are dropped before being written.
func SetFilter(name, substr string) error {
	mu.Lock()
	defer mu.Unlock()
	l, ok := loggers[name]
	if !ok {
		return fmt.Errorf("logger %q does not exist", name)
	}
	l.filters = append(l.filters, substr)
	return nil
}

// WillLog reports whether any registered logger would emit at level.
func WillLog(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if level >= l.level {
			return true
		}
	}
	return false
}

func prologue(level Level, useColor bool) string {
	_, file, line, _ := runtime.Caller(3)
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}

	tag := level.String()
	if useColor {
		tag = tagColor[level].Sprint(tag)
	}
	return fmt.Sprintf("%s %s:%d: ", tag, short, line)
}

func logf(level Level, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if len(loggers) == 0 && level >= WARN {
		// No logger configured yet: fall back to stderr so early startup
		// errors are never silently dropped.
		fmt.Fprintln(os.Stderr, level.String()+" "+fmt.Sprintf(format, args...))
		return
	}

	msg := fmt.Sprintf(format, args...)
	for _, l := range loggers {
		if level < l.level {
			continue
		}
		filtered := false
		for _, f := range l.filters {
			if strings.Contains(msg, f) {
				filtered = true
				break
			}
		}
		if filtered {
			continue
		}
		l.out.Print(prologue(level, l.color) + msg)
		if level == FATAL {
			os.Exit(1)
		}
	}
}

func Debug(format string, args ...interface{}) { logf(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { logf(INFO, format, args...) }
func Warn(format string, args ...interface{})  { logf(WARN, format, args...) }
func Error(format string, args ...interface{}) { logf(ERROR, format, args...) }
func Fatal(format string, args ...interface{}) { logf(FATAL, format, args...) }

func Debugln(args ...interface{}) { logf(DEBUG, "%s", fmt.Sprint(args...)) }
func Infoln(args ...interface{})  { logf(INFO, "%s", fmt.Sprint(args...)) }
func Warnln(args ...interface{})  { logf(WARN, "%s", fmt.Sprint(args...)) }
func Errorln(args ...interface{}) { logf(ERROR, "%s", fmt.Sprint(args...)) }
func Fatalln(args ...interface{}) { logf(FATAL, "%s", fmt.Sprint(args...)) }

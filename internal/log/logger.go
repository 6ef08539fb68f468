package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with printf helpers and colored progress output
type Logger struct {
	*logrus.Logger
	out   io.Writer
	green *color.Color
	cyan  *color.Color
	red   *color.Color
	bold  *color.Color
}

// New creates a logger writing to stderr. DEBUG=true enables debug level.
func New() *Logger {
	logger := &Logger{
		Logger: logrus.New(),
		out:    os.Stdout,
		green:  color.New(color.FgGreen),
		cyan:   color.New(color.FgCyan),
		red:    color.New(color.FgRed),
		bold:   color.New(color.Bold),
	}

	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006/01/02 15:04:05",
		FullTimestamp:   true,
		DisableSorting:  true,
	})

	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(logrus.DebugLevel)
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// Discard returns a logger that writes nowhere
func Discard() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	l.out = io.Discard
	return l
}

// SetLevelName sets the level from a name like "debug" or "warn"
func (l *Logger) SetLevelName(name string) error {
	if name == "" {
		return nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.Logger.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.Logger.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.Logger.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, v...))
}

// Progress starts a "→ doing thing... " line on the console
func (l *Logger) Progress(format string, v ...interface{}) {
	l.cyan.Fprint(l.out, "→ ")
	fmt.Fprintf(l.out, format+"... ", v...)
}

// Done finishes a progress line
func (l *Logger) Done(format string, v ...interface{}) {
	if format == "" {
		l.green.Fprintln(l.out, "done")
		return
	}
	l.green.Fprintf(l.out, "done ("+format+")\n", v...)
}

// Fail finishes a progress line with an error marker
func (l *Logger) Fail() {
	l.red.Fprintln(l.out, "failed")
}

// Success prints a final check-marked line
func (l *Logger) Success(format string, v ...interface{}) {
	l.green.Fprint(l.out, "✓ ")
	l.bold.Fprintf(l.out, format+"\n", v...)
}

// Println writes a plain console line
func (l *Logger) Println(format string, v ...interface{}) {
	fmt.Fprintf(l.out, format+"\n", v...)
}

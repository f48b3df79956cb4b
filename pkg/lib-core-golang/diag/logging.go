// Package diag provides structured logging on top of logrus. Request and
// FinTS dialog ids stored in a context are added to every message
package diag

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MsgData is structured data attached to a message
type MsgData map[string]interface{}

// Logger writes leveled messages. Messages are printf style formats
type Logger interface {
	Error(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Debug(ctx context.Context, msg string, args ...interface{})

	WithError(err error) Logger
	WithData(data MsgData) Logger
}

type entryLogger struct {
	entry *logrus.Entry
}

func (l entryLogger) print(ctx context.Context, level logrus.Level, msg string, args []interface{}) {
	entry := l.entry
	if ctx != nil {
		if data := contextData(ctx); len(data) > 0 {
			entry = entry.WithField("context", data)
		}
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	entry.Log(level, msg)
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{entry: l.entry.WithError(err)}
}

func (l entryLogger) WithData(data MsgData) Logger {
	return entryLogger{entry: l.entry.WithField("msgData", data)}
}

func (l entryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, logrus.ErrorLevel, msg, args)
}

func (l entryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, logrus.WarnLevel, msg, args)
}

func (l entryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, logrus.InfoLevel, msg, args)
}

func (l entryLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.print(ctx, logrus.DebugLevel, msg, args)
}

// LoggingSystemSetup changes output of all loggers
type LoggingSystemSetup interface {
	// SetLogLevel sets the min level: error, warn, info or debug
	SetLogLevel(level string)

	// SetLogFile writes logs to a rotated file. Empty path keeps the current output
	SetLogFile(path string)
}

type loggingSystem struct {
	root        *logrus.Logger
	projectRoot string
}

func newLoggingSystem(out io.Writer, projectRoot string) *loggingSystem {
	return &loggingSystem{
		root: &logrus.Logger{
			Out:       out,
			Formatter: new(logrus.JSONFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.DebugLevel,
		},
		projectRoot: projectRoot,
	}
}

func (s *loggingSystem) SetLogLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		panic(err)
	}
	s.root.SetLevel(parsed)
}

func (s *loggingSystem) SetLogFile(path string) {
	if path == "" {
		return
	}
	s.root.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     30,
	})
}

// packageLogger names a logger after a source dir relative to the project root
func (s *loggingSystem) packageLogger(dir string) Logger {
	name, err := filepath.Rel(s.projectRoot, dir)
	if err != nil {
		name = dir
	}
	return entryLogger{entry: s.root.WithField("package", name)}
}

var system = func() *loggingSystem {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("Can not get project root")
	}
	projectRoot := filepath.Join(file, "..", "..", "..", "..")
	if flag.Lookup("test.v") == nil {
		return newLoggingSystem(os.Stdout, projectRoot)
	}
	out, err := os.OpenFile(filepath.Join(projectRoot, "test.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		panic(err)
	}
	return newLoggingSystem(out, projectRoot)
}()

// SetupLoggingSystem configures the root logger. Call it once on app start
func SetupLoggingSystem(setup ...func(LoggingSystemSetup)) {
	for _, setupFn := range setup {
		setupFn(system)
	}
}

// CreateLogger returns a logger named after the calling package
func CreateLogger() Logger {
	dir := "unknown"
	if _, file, _, ok := runtime.Caller(1); ok {
		dir = filepath.Dir(file)
	}
	return system.packageLogger(dir)
}

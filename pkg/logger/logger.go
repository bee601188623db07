// Package logger wraps logrus with the formatter and level handling coredb's
// components use for lifecycle and error events.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Components read it directly rather than
// carrying a logger field, mirroring how the rest of the storage engine
// treats logging as ambient infrastructure.
var Log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&callerFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return l
}

// Init reconfigures the global logger: level is one of
// debug|info|warn|error|fatal|panic, and path, if non-empty, tees output to
// that file in addition to stdout.
func Init(level, path string) error {
	Log.SetLevel(parseLevel(level))
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	Log.SetOutput(io.MultiWriter(os.Stdout, f))
	return nil
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

type callerFormatter struct{}

func (f *callerFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.Format("15:04:05.000")
	level := strings.ToUpper(e.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	return []byte(fmt.Sprintf("[%s] %-4s (%s) %s\n", ts, level, caller(), e.Message)), nil
}

func caller() string {
	for i := 2; i < 20; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/logrus/") || strings.Contains(file, "pkg/logger/logger.go") {
			continue
		}
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return "unknown:0"
}

func Debugf(format string, args ...interface{}) { Log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Log.Errorf(format, args...) }

// Fatalf logs at fatal level and terminates the process. Reserved for the
// file-corruption / bad-config conditions spec as fatal at open time.
func Fatalf(format string, args ...interface{}) { Log.Fatalf(format, args...) }

package logger

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Packages log through it with structured
// fields; cmd/* configure it once from the loaded config.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// Configure sets level ("debug", "info", ...) and format ("text" or "json").
func Configure(level, format string, out io.Writer) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Wrap(err, "logger: bad level")
		}
		Log.SetLevel(lvl)
	}

	switch strings.ToLower(format) {
	case "", "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("logger: unknown format %q", format)
	}

	if out != nil {
		Log.SetOutput(out)
	}
	return nil
}

func WithFields(f logrus.Fields) *logrus.Entry { return Log.WithFields(f) }

package logx

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the JSON logger used by every process. An unknown level falls
// back to info.
func New(level, service string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		l.Warnf("invalid LOG_LEVEL %q, using %s", level, lvl)
	}
	l.SetLevel(lvl)
	return l.WithField("service", service)
}

// Discard is a logger for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

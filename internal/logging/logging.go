package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var root = newRoot(os.Stdout)

func newRoot(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure sets the level ("debug", "info", ...) and format ("text" or
// "json") of every component logger.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	root.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput redirects every component logger.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}

// New returns a logger tagged with component=name.
func New(component string) *logrus.Entry {
	return root.WithField("component", component)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

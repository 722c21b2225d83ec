package logging

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/coinledger/internal/config"
)

// Logger is the structured logger shared by every package.
type Logger = logrus.FieldLogger

// Fields represents structured logging fields
type Fields = logrus.Fields

// NewLogger creates a JSON logger tagged with the service name.
func NewLogger(service string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger.WithField("service", service)
}

// Discard returns a logger that drops everything; used by tests and optional wiring.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// OrDiscard substitutes a silent logger for nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

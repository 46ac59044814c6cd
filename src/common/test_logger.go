package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level of the loggers created by tests that do not
// inspect log output.
const TestLogLevel = logrus.InfoLevel

// testWriter sends log lines to t.Log, so that the output of a test only
// shows when it fails.
type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(d []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(d), "\n"))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry is NewTestLogger with a "prefix" field, the shape every
// component constructor expects.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", t.Name())
}

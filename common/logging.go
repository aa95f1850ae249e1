// Package common provides the shared logging infrastructure for the
// Operator Network services. It implements log output routing that directs
// error messages to stderr while sending other log levels to stdout, so
// containerized deployments can treat the two streams differently.
//
// The logging system is built on logrus for structured logging. A global
// Logger instance is shared by all services so output handling and
// formatting stay uniform.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log output by severity: entries
// containing "level=error" go to stderr, everything else to stdout. It
// operates on the final formatted output, so it works with both the text
// and JSON logrus formatters (JSON output uses `"level":"error"`).
type OutputSplitter struct{}

// Write implements io.Writer, selecting the stream by content.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance for the Operator Network services.
// Output is routed through OutputSplitter; level and format are adjusted
// at startup via ConfigureLogger.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&OutputSplitter{})
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// ConfigureLogger applies the configured level and format to the global
// logger. Unknown levels fall back to info; unknown formats keep text.
func ConfigureLogger(level, format string) {
	if parsed, err := logrus.ParseLevel(level); err == nil {
		Logger.SetLevel(parsed)
	} else {
		Logger.SetLevel(logrus.InfoLevel)
	}

	switch format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

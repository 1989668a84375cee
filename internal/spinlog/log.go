// Package spinlog builds the process-wide diagnostic log sink: a
// JSON-per-line file under the SpinDB root (~/.spindb/spindb.log), opened for
// append and never rotated. Adapted from the prior implementation's pkg/log.NewLogger,
// which configures the same logrus.JSONFormatter / file-vs-discard split
// but for its own config dir and debug flag.
package spinlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Options configures the logger; Root is the SpinDB root directory
// (~/.spindb) and Debug mirrors the global --debug CLI flag / DEBUG env var.
type Options struct {
	Root    string
	Debug   bool
	Version string
}

// New returns a logrus.Entry writing JSON lines to root/spindb.log. Debug
// mode also lowers the level to Debug; normal mode only logs Warn+.
func New(opts Options) *logrus.Entry {
	logger := logrus.New()
	logger.Formatter = &logrus.JSONFormatter{}

	level := logrus.WarnLevel
	if opts.Debug || os.Getenv("DEBUG") == "TRUE" {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	logPath := filepath.Join(opts.Root, "spindb.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spindb: unable to open log file, logging to stderr instead")
		logger.Out = os.Stderr
	} else {
		logger.Out = file
	}

	return logger.WithFields(logrus.Fields{
		"version": opts.Version,
	})
}

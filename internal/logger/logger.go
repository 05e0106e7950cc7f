// Package logger builds the structured loggers handed to the calendar
// components.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created inside Config.Dir.
const FileName = "calendar.log"

// Config holds logger configuration.
type Config struct {
	Debug bool

	// Dir receives the rotating log file. Empty disables file output.
	Dir string

	// Prefix tags every line, e.g. the binary name.
	Prefix string

	// Stderr receives console output. Nil means os.Stderr.
	Stderr io.Writer
}

// New returns a logger writing to a rotating file in cfg.Dir. In debug
// mode lines are also copied to stderr; without a directory stderr is the
// only output. The returned closer flushes the file.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	var writer io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, FileName),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		closer = fileWriter
		writer = fileWriter
		if cfg.Debug {
			writer = io.MultiWriter(stderr, fileWriter)
		}
	}

	l := log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          cfg.Prefix,
	})
	return l, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

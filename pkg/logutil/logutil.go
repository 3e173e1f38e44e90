package logutil

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
)

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// Configure sets the process-wide level and formatter. Loggers derived with
// WithPrefix copy the default logger, so call this before building components.
func Configure(levelRaw, formatRaw string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	formatter, err := ParseFormatter(formatRaw)
	if err != nil {
		return err
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	log.SetOutput(output)
	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetReportTimestamp(true)
	return nil
}

// SetOutput redirects the default logger, mainly for tests.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
	log.SetOutput(w)
}

func ParseLevel(levelRaw string) (log.Level, error) {
	levelRaw = strings.ToLower(strings.TrimSpace(levelRaw))
	switch levelRaw {
	case "":
		return log.InfoLevel, nil
	case "trace", "trac":
		// No native trace level.
		return log.DebugLevel, nil
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
	return level, nil
}

func ParseFormatter(formatRaw string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(formatRaw)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("invalid log format %q", formatRaw)
	}
}

// StandardLog adapts the default logger for libraries that expect a
// *log.Logger, such as chi's request logger and http.Server.ErrorLog.
func StandardLog(prefix string, level log.Level) *stdlog.Logger {
	l := log.Default()
	if prefix != "" {
		l = l.WithPrefix(prefix)
	}
	return l.StandardLog(log.StandardLogOptions{ForceLevel: level})
}

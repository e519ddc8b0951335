// Package simplelogger appends diagnostics to the file named by MSGLOG_LOG_FILE. Nothing is written when the variable is unset.
package simplelogger

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// EnvVar names the log file.
const EnvVar = "MSGLOG_LOG_FILE"

var mu sync.Mutex

// Log appends printf-style output, plus a trailing newline if missing, to the log file. It is a no-op if MSGLOG_LOG_FILE is unset or cannot be opened.
func Log(format string, args ...any) {
	var b bytes.Buffer
	_, _ = fmt.Fprintf(&b, format, args...)
	if b.Len() == 0 || b.Bytes()[b.Len()-1] != '\n' {
		_ = b.WriteByte('\n')
	}
	_, _ = fileWriter{}.Write(b.Bytes())
}

// Enabled reports whether MSGLOG_LOG_FILE is set.
func Enabled() bool {
	return os.Getenv(EnvVar) != ""
}

// Slog returns a text-format slog.Logger that writes records at level and above to the log file. If MSGLOG_LOG_FILE is unset, records are discarded.
//
// The environment is read on every write, so the returned logger follows later changes to MSGLOG_LOG_FILE.
func Slog(level slog.Leveler) *slog.Logger {
	var w io.Writer = fileWriter{}
	if !Enabled() {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// fileWriter opens, appends to, and closes the log file on every Write, serialized by mu to reduce interleaving within a process.
type fileWriter struct{}

func (fileWriter) Write(p []byte) (int, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return len(p), nil
	}

	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}

// Package logging provides a leveled logger that writes to a file instead
// of stdout, since the alt-screen TUI owns the terminal surface for the
// duration of the program.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// Logger wraps the standard library's log.Logger with leveled helpers,
// following the convention the rest of the corpus uses for its own
// diagnostics wrapper.
type Logger struct {
	*log.Logger
	mu      sync.Mutex
	onceSet map[string]bool
}

// New opens (creating if needed) path for append and returns a Logger
// writing to it. If path is empty, logs go to os.Stderr.
func New(path string) (*Logger, error) {
	var w io.Writer = os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	}
	return &Logger{
		Logger:  log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		onceSet: make(map[string]bool),
	}, nil
}

func (l *Logger) Debug(format string, v ...interface{}) { l.Printf("[DEBUG] "+format, v...) }
func (l *Logger) Info(format string, v ...interface{})  { l.Printf("[INFO] "+format, v...) }
func (l *Logger) Warn(format string, v ...interface{})  { l.Printf("[WARN] "+format, v...) }
func (l *Logger) Error(format string, v ...interface{}) { l.Printf("[ERROR] "+format, v...) }

// WarnOnce logs a warning at most once per key for the life of the Logger.
func (l *Logger) WarnOnce(key, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onceSet[key] {
		return
	}
	l.onceSet[key] = true
	l.Warn(format, v...)
}

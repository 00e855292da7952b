// Package journal appends one JSON line per flow step so a run can be
// reconstructed after the console output is gone.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one journal record.
type Event struct {
	Time      time.Time      `json:"time"`
	Run       string         `json:"run"`
	Step      string         `json:"step"`
	Status    string         `json:"status"`
	OrderHash string         `json:"order_hash,omitempty"`
	TxHash    string         `json:"tx_hash,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Writer appends events as JSON lines. Each event reaches the file in a
// single write, so a tailer never sees half a line.
//
// It is safe for concurrent use. A nil *Writer discards everything.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// New returns a writer that appends to path, or nil when path is blank. The
// file is created on the first Record.
func New(path string) *Writer {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Writer{path: path, now: time.Now}
}

// Record stamps ev with the current time when unset and appends it.
func (w *Writer) Record(ev Event) error {
	if w == nil {
		return nil
	}
	if ev.Time.IsZero() {
		ev.Time = w.now().UTC()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal %s: %w", ev.Step, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w.file = f
	}
	_, err = w.file.Write(line)
	return err
}

// Close closes the file. A later Record reopens it.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

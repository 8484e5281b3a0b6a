// Package health maintains the edge daemon's local health file. External
// watchdogs (container healthchecks, node exporters) read it to judge
// whether the daemon is alive and keeping up.
package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the JSON document written to the health file. Timestamps are
// RFC 3339 UTC; nil means the event has not happened since startup.
type Status struct {
	LastPollTS   *time.Time `json:"last_poll_ts"`
	LastUploadTS *time.Time `json:"last_upload_ts"`
	SpoolCount   int64      `json:"spool_count"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Writer serialises health updates from the poll and upload loops and
// persists them atomically.
type Writer struct {
	path string

	mu     sync.Mutex
	status Status
}

// NewWriter creates a Writer that persists to path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// RecordPoll notes a successful poll cycle and rewrites the file.
func (w *Writer) RecordPoll(ts time.Time, spoolCount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := ts.UTC()
	w.status.LastPollTS = &t
	w.status.SpoolCount = spoolCount
	return w.flushLocked()
}

// RecordUpload notes a successful upload and rewrites the file.
func (w *Writer) RecordUpload(ts time.Time, spoolCount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := ts.UTC()
	w.status.LastUploadTS = &t
	w.status.SpoolCount = spoolCount
	return w.flushLocked()
}

// Snapshot returns a copy of the current status.
func (w *Writer) Snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// flushLocked writes the status to a temp file in the same directory and
// renames it over the target, so readers never observe a torn file.
func (w *Writer) flushLocked() error {
	w.status.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(w.status)
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".health-*.json")
	if err != nil {
		return fmt.Errorf("create temp health file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp health file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp health file: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename health file: %w", err)
	}
	return nil
}

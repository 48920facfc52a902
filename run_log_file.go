package weave

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RunLogger receives every log entry the engine appends to a run, for
// durable or streaming consumption beyond the run's in-memory log.
type RunLogger interface {
	Append(ctx context.Context, runID string, entry LogEntry) error
}

// NullRunLogger discards all entries.
type NullRunLogger struct{}

func NewNullRunLogger() *NullRunLogger { return &NullRunLogger{} }

func (l *NullRunLogger) Append(ctx context.Context, runID string, entry LogEntry) error {
	return nil
}

// FileRunLogger appends run log entries as JSON lines, one file per run.
type FileRunLogger struct {
	mutex   sync.Mutex
	dataDir string
	files   map[string]*os.File
}

// NewFileRunLogger creates a file-based run logger rooted at dataDir. An
// empty dataDir defaults to ~/.weave/runs.
func NewFileRunLogger(dataDir string) (*FileRunLogger, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".weave", "runs")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileRunLogger{
		dataDir: dataDir,
		files:   map[string]*os.File{},
	}, nil
}

func (l *FileRunLogger) Append(ctx context.Context, runID string, entry LogEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	file, ok := l.files[runID]
	if !ok {
		path := filepath.Join(l.dataDir, runID+".jsonl")
		var err error
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open run log file: %w", err)
		}
		l.files[runID] = file
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// Close closes all open run log files.
func (l *FileRunLogger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var firstErr error
	for runID, file := range l.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.files, runID)
	}
	return firstErr
}

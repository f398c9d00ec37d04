package runner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorLog is an append-only human-readable failure journal. Runs are long
// and partially successful; operators read this file after the fact to see
// which vehicles lost which sites, without digging through structured logs.
type ErrorLog struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// OpenErrorLog opens (or creates) the journal at path.
func OpenErrorLog(path string, logger *slog.Logger) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &ErrorLog{file: f, logger: logger.With("component", "error_log")}, nil
}

// Record appends one failure entry.
func (l *ErrorLog) Record(vehicleID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s | vehicle=%s | type=%T | %v\n",
		time.Now().Format(time.RFC3339), vehicleID, err, err)
	if _, werr := l.file.WriteString(line); werr != nil {
		l.logger.Error("failed to append error log entry", "error", werr)
	}
}

// Close closes the journal file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

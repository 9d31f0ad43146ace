package repository

import (
	"context"
	"errors"
	"os"
	"sync"

	"project_waflow/internal/entities"
)

const auditLogName = "message-log"

// FileAuditLog is the send log kept as a single JSON array in <dataDir>/message-log.json.
// A single writer lock covers the whole append-and-truncate cycle.
type FileAuditLog struct {
	mu    sync.Mutex
	files *jsonDir
	limit int
}

func NewFileAuditLog(dataDir string) *FileAuditLog {
	return &FileAuditLog{files: newJSONDir(dataDir), limit: entities.MaxAuditEntries}
}

func (l *FileAuditLog) Append(ctx context.Context, entry entities.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > l.limit {
		entries = append([]entities.AuditEntry(nil), entries[len(entries)-l.limit:]...)
	}
	return l.files.write(auditLogName, entries)
}

// Tail returns the most recent n entries in chronological order
func (l *FileAuditLog) Tail(ctx context.Context, n int) ([]entities.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func (l *FileAuditLog) readLocked() ([]entities.AuditEntry, error) {
	var entries []entities.AuditEntry
	if err := l.files.read(auditLogName, &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []entities.AuditEntry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

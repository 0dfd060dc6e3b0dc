// Package history persists one record per completed search to a JSON file.
// The file holds a plain array of entries so it stays readable and greppable
// by hand; every mutation is a read-modify-write under a process-wide lock.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/pkg/models"
)

// Ledger is the append-mostly search history store.
type Ledger struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

func NewLedger(path string, log *zap.Logger) *Ledger {
	return &Ledger{path: path, log: log}
}

// Append adds one entry, stamping Timestamp if unset.
func (l *Ledger) Append(entry models.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entries := l.load()
	entries = append(entries, entry)
	return l.store(entries)
}

// All returns every entry, oldest first.
func (l *Ledger) All() []models.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// FindBySession returns the most recent entry for the session.
func (l *Ledger) FindBySession(sessionID string) (models.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].SessionID == sessionID {
			return entries[i], nil
		}
	}
	return models.HistoryEntry{}, fmt.Errorf("%w: no history for session %s", models.ErrNotFound, sessionID)
}

// AttachArtifact records a rendered artifact against the session's newest
// entry. An existing reference for the same case number is replaced, so
// re-rendering a detail view never duplicates descriptors.
func (l *Ledger) AttachArtifact(sessionID string, ref models.ArtifactRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].SessionID != sessionID {
			continue
		}
		replaced := false
		for j, existing := range entries[i].Artifacts {
			if existing.CNO == ref.CNO {
				entries[i].Artifacts[j] = ref
				replaced = true
				break
			}
		}
		if !replaced {
			entries[i].Artifacts = append(entries[i].Artifacts, ref)
		}
		return l.store(entries)
	}
	return fmt.Errorf("%w: no history for session %s", models.ErrNotFound, sessionID)
}

// load reads the file, treating a missing or corrupt file as an empty
// ledger. Corruption is logged and the bad content is preserved on disk
// until the next successful store.
func (l *Ledger) load() []models.HistoryEntry {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.log.Warn("history file unreadable, starting empty",
				zap.String("path", l.path), zap.Error(err))
		}
		return nil
	}
	var entries []models.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.log.Warn("history file corrupt, starting empty",
			zap.String("path", l.path), zap.Error(err))
		return nil
	}
	return entries
}

func (l *Ledger) store(entries []models.HistoryEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0o644); err != nil {
		return fmt.Errorf("write history file %s: %w", l.path, err)
	}
	return nil
}

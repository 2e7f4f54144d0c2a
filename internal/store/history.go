package store

import (
	"fmt"
	"time"

	"github.com/anontester/ripweb/internal/domain"
)

// HistoryRepo persists the append-only completed-download log.
type HistoryRepo struct {
	db *DB
}

func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Add records a completed download. Duplicate (source, item_id) pairs are
// ignored so the log stays append-only.
func (r *HistoryRepo) Add(entry domain.HistoryEntry) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO download_history (source, item_id, media_type, title, artist, url, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Source, entry.ID, entry.MediaType, entry.Title, entry.Artist, entry.URL, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

func (r *HistoryRepo) List() ([]domain.HistoryEntry, error) {
	entries := []domain.HistoryEntry{}
	err := r.db.Select(&entries, `
		SELECT source, item_id, media_type, title, artist, url, completed_at
		FROM download_history ORDER BY completed_at ASC
	`)
	return entries, err
}

// Keys returns the identity set of every recorded download, used to mark
// search results as already downloaded.
func (r *HistoryRepo) Keys() (map[domain.ItemKey]struct{}, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	keys := make(map[domain.ItemKey]struct{}, len(entries))
	for _, e := range entries {
		keys[e.Key()] = struct{}{}
	}
	return keys, nil
}

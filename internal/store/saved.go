package store

import (
	"fmt"
	"time"

	"github.com/anontester/ripweb/internal/domain"
)

// SavedRepo persists the save-for-later list. Identity is (source, item_id);
// re-saving an identity overwrites the row instead of duplicating it.
type SavedRepo struct {
	db *DB
}

func NewSavedRepo(db *DB) *SavedRepo {
	return &SavedRepo{db: db}
}

func (r *SavedRepo) Add(item domain.SavedItem) error {
	_, err := r.db.Exec(`
		INSERT INTO saved_items (source, item_id, media_type, title, artist, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, item_id) DO UPDATE SET
			media_type = excluded.media_type,
			title = excluded.title,
			artist = excluded.artist,
			url = excluded.url
	`, item.Source, item.ID, item.MediaType, item.Title, item.Artist, item.URL, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (r *SavedRepo) Remove(key domain.ItemKey) error {
	_, err := r.db.Exec(`DELETE FROM saved_items WHERE source = ? AND item_id = ?`, key.Source, key.ID)
	return err
}

func (r *SavedRepo) List() ([]domain.SavedItem, error) {
	items := []domain.SavedItem{}
	err := r.db.Select(&items, `
		SELECT source, item_id, media_type, title, artist, url, created_at
		FROM saved_items ORDER BY created_at ASC
	`)
	return items, err
}

package registry

import (
	"github.com/anontester/ripweb/internal/domain"
)

// SavedList returns the persisted saved items, newest first.
func (r *Registry) SavedList() ([]domain.SavedItem, error) {
	return r.saved.List()
}

// SaveItem stores an item in the saved list directly, without going through
// a queued job. Saving the same identity twice overwrites.
func (r *Registry) SaveItem(item domain.SavedItem) error {
	if err := r.saved.Add(item); err != nil {
		return err
	}
	r.post(func() { r.publishSaved() })
	return nil
}

// RemoveSaved deletes one saved item.
func (r *Registry) RemoveSaved(key domain.ItemKey) error {
	if err := r.saved.Remove(key); err != nil {
		return err
	}
	r.post(func() { r.publishSaved() })
	return nil
}

// DownloadSaved enqueues saved items for download. With no keys every saved
// item is enqueued; otherwise only the named ones. Items stay on the saved
// list until their download completes.
func (r *Registry) DownloadSaved(keys []domain.ItemKey) ([]*domain.Job, error) {
	saved, err := r.saved.List()
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	if len(keys) == 0 {
		for _, s := range saved {
			items = append(items, savedToItem(s))
		}
	} else {
		wanted := make(map[domain.ItemKey]struct{}, len(keys))
		for _, k := range keys {
			wanted[k] = struct{}{}
		}
		for _, s := range saved {
			if _, ok := wanted[s.Key()]; ok {
				items = append(items, savedToItem(s))
			}
		}
	}
	if len(items) == 0 {
		return nil, nil
	}
	return r.Enqueue(items), nil
}

func savedToItem(s domain.SavedItem) domain.Item {
	return domain.Item{
		ID:        s.ID,
		Source:    s.Source,
		MediaType: s.MediaType,
		Title:     s.Title,
		Artist:    s.Artist,
		URL:       s.URL,
	}
}

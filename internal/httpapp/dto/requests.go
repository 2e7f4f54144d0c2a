package dto

import (
	"fmt"

	"github.com/anontester/ripweb/internal/domain"
)

var validSources = map[string]bool{
	"qobuz":  true,
	"tidal":  true,
	"deezer": true,
}

var validSearchTypes = map[domain.MediaType]bool{
	domain.MediaTypeTrack:    true,
	domain.MediaTypeAlbum:    true,
	domain.MediaTypePlaylist: true,
	domain.MediaTypeArtist:   true,
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Source    string           `json:"source"`
	MediaType domain.MediaType `json:"media_type"`
	Query     string           `json:"query"`
	Limit     int              `json:"limit"`
}

func (r *SearchRequest) Validate() []ValidationError {
	var errs []ValidationError
	if !validSources[r.Source] {
		errs = append(errs, ValidationError{Field: "source", Message: "must be one of qobuz, tidal, deezer"})
	}
	if !validSearchTypes[r.MediaType] {
		errs = append(errs, ValidationError{Field: "media_type", Message: "must be one of track, album, playlist, artist"})
	}
	if r.Query == "" {
		errs = append(errs, ValidationError{Field: "query", Message: "cannot be empty"})
	}
	if r.Limit < 0 || r.Limit > 100 {
		errs = append(errs, ValidationError{Field: "limit", Message: "must be between 0 and 100"})
	}
	return errs
}

// DownloadRequest is the body of POST /api/downloads: the search-result items
// to enqueue.
type DownloadRequest struct {
	Items []domain.Item `json:"items"`
}

func (r *DownloadRequest) Validate() []ValidationError {
	var errs []ValidationError
	if len(r.Items) == 0 {
		errs = append(errs, ValidationError{Field: "items", Message: "cannot be empty"})
	}
	for i, item := range r.Items {
		if item.ID == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("items[%d].id", i), Message: "cannot be empty"})
		}
		if !validSources[item.Source] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("items[%d].source", i), Message: "must be one of qobuz, tidal, deezer"})
		}
		if !validSearchTypes[item.MediaType] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("items[%d].media_type", i), Message: "must be one of track, album, playlist, artist"})
		}
	}
	return errs
}

// URLDownloadRequest is the body of POST /api/url-downloads.
type URLDownloadRequest struct {
	URLs []string `json:"urls"`
}

func (r *URLDownloadRequest) Validate() []ValidationError {
	if len(r.URLs) == 0 {
		return []ValidationError{{Field: "urls", Message: "cannot be empty"}}
	}
	return nil
}

// SaveItemRequest is the body of POST /api/saved: an item to keep for later.
type SaveItemRequest struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	MediaType domain.MediaType `json:"media_type"`
	Title     string           `json:"title"`
	Artist    string           `json:"artist"`
	URL       string           `json:"url"`
}

func (r *SaveItemRequest) Validate() []ValidationError {
	var errs []ValidationError
	if r.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "cannot be empty"})
	}
	if r.Source == "" {
		errs = append(errs, ValidationError{Field: "source", Message: "cannot be empty"})
	}
	return errs
}

func (r *SaveItemRequest) ToSavedItem() domain.SavedItem {
	return domain.SavedItem{
		ID:        r.ID,
		Source:    r.Source,
		MediaType: r.MediaType,
		Title:     r.Title,
		Artist:    r.Artist,
		URL:       r.URL,
	}
}

// ItemKeyRef names one saved item by identity.
type ItemKeyRef struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

func (k ItemKeyRef) Key() domain.ItemKey {
	return domain.ItemKey{Source: k.Source, ID: k.ID}
}

// SavedDownloadRequest is the body of POST /api/saved/download. An empty
// items list means download everything saved.
type SavedDownloadRequest struct {
	Items []ItemKeyRef `json:"items"`
}

func (r *SavedDownloadRequest) Keys() []domain.ItemKey {
	keys := make([]domain.ItemKey, 0, len(r.Items))
	for _, it := range r.Items {
		keys = append(keys, it.Key())
	}
	return keys
}

// SavedRemoveRequest is the body of POST /api/saved/remove.
type SavedRemoveRequest struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

func (r *SavedRemoveRequest) Key() domain.ItemKey {
	return domain.ItemKey{Source: r.Source, ID: r.ID}
}

func (r *SavedRemoveRequest) Validate() []ValidationError {
	var errs []ValidationError
	if r.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "cannot be empty"})
	}
	if r.Source == "" {
		errs = append(errs, ValidationError{Field: "source", Message: "cannot be empty"})
	}
	return errs
}

package domain

import "time"

type MediaType string

const (
	MediaTypeTrack    MediaType = "track"
	MediaTypeAlbum    MediaType = "album"
	MediaTypePlaylist MediaType = "playlist"
	MediaTypeArtist   MediaType = "artist"
	MediaTypeURL      MediaType = "url"
	MediaTypeLastFM   MediaType = "lastfm"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
	JobStatusAborted    JobStatus = "aborted"
)

// Terminal reports whether the status is an end state. A terminal job stays
// put until the user retries, saves, or dismisses it.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusAborted:
		return true
	}
	return false
}

// ItemKey identifies a provider item across the queue, the saved list and
// the download history.
type ItemKey struct {
	Source string
	ID     string
}

// Item is a provider-identified piece of media, as returned by search or
// resolved from a URL. Jobs copy it at enqueue time.
type Item struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	MediaType  MediaType `json:"media_type"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	URL        string    `json:"url,omitempty"`
	AlbumType  string    `json:"album_type,omitempty"`
	Tracks     int       `json:"tracks,omitempty"`
	Year       string    `json:"year,omitempty"`
	Explicit   bool      `json:"explicit"`
	Downloaded bool      `json:"downloaded"`
}

func (i Item) Key() ItemKey {
	return ItemKey{Source: i.Source, ID: i.ID}
}

// Job is one queued download unit. Item fields are flattened into the job
// payload so the browser renders a single row per job.
type Job struct {
	ID        string    `json:"job_id"`
	Source    string    `json:"source"`
	MediaType MediaType `json:"media_type"`
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	URL       string    `json:"url,omitempty"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`

	// Downloaded is derived: true once a terminal outcome reported every
	// constituent track as downloaded or skipped.
	Downloaded bool `json:"downloaded"`

	// ForceNoDB asks the executor to ignore its already-downloaded cache
	// for the next attempt only.
	ForceNoDB bool `json:"force_no_db"`
}

func (j *Job) Key() ItemKey {
	return ItemKey{Source: j.Source, ID: j.ItemID}
}

// Item reconstructs the enqueue-time item copy owned by the job.
func (j *Job) Item() Item {
	return Item{
		ID:        j.ItemID,
		Source:    j.Source,
		MediaType: j.MediaType,
		Title:     j.Title,
		Artist:    j.Artist,
		URL:       j.URL,
	}
}

// SavedItem is a deferred download the user chose to keep for later.
// Identity is (source, item_id); saving the same identity twice overwrites.
type SavedItem struct {
	ID        string    `json:"id" db:"item_id"`
	Source    string    `json:"source" db:"source"`
	MediaType MediaType `json:"media_type" db:"media_type"`
	Title     string    `json:"title" db:"title"`
	Artist    string    `json:"artist,omitempty" db:"artist"`
	URL       string    `json:"url,omitempty" db:"url"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

func (s SavedItem) Key() ItemKey {
	return ItemKey{Source: s.Source, ID: s.ID}
}

// HistoryEntry marks an item as successfully downloaded in some past session.
// Append-only; used to flag search results as already downloaded.
type HistoryEntry struct {
	ID          string    `json:"id" db:"item_id"`
	Source      string    `json:"source" db:"source"`
	MediaType   MediaType `json:"media_type" db:"media_type"`
	Title       string    `json:"title" db:"title"`
	Artist      string    `json:"artist,omitempty" db:"artist"`
	URL         string    `json:"url,omitempty" db:"url"`
	CompletedAt time.Time `json:"-" db:"completed_at"`
}

func (h HistoryEntry) Key() ItemKey {
	return ItemKey{Source: h.Source, ID: h.ID}
}

// QueueState is a full consistent read of the registry: the poll response
// body and the payload pushed on every queue change. Version increases
// monotonically with each registry mutation so consumers can order
// snapshots arriving out of band.
type QueueState struct {
	Version  int64                        `json:"version"`
	Queue    []*Job                       `json:"queue"`
	Progress map[string]*ProgressSnapshot `json:"progress"`
	History  []HistoryEntry               `json:"history"`
}

package domain

type TrackStatus string

const (
	TrackStatusResolving   TrackStatus = "resolving"
	TrackStatusReady       TrackStatus = "ready"
	TrackStatusDownloading TrackStatus = "downloading"
	TrackStatusDownloaded  TrackStatus = "downloaded"
	TrackStatusSkipped     TrackStatus = "skipped"
	TrackStatusFailed      TrackStatus = "failed"
)

// Terminal reports whether a track has reached its final status within the
// current job attempt.
func (s TrackStatus) Terminal() bool {
	return s == TrackStatusDownloaded || s == TrackStatusSkipped || s == TrackStatusFailed
}

// TrackInfo describes the track currently being processed.
type TrackInfo struct {
	TrackID     string `json:"track_id"`
	Title       string `json:"title,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"tracknumber,omitempty"`
	DiscNumber  int    `json:"discnumber,omitempty"`
}

// TrackProgress is the transfer state of the current track. ETA is nil when
// no rate has been observed yet, never zero-as-unknown.
type TrackProgress struct {
	TrackID  string      `json:"track_id"`
	Desc     string      `json:"desc,omitempty"`
	Received int64       `json:"received"`
	Total    int64       `json:"total"`
	ETA      *float64    `json:"eta"`
	Status   TrackStatus `json:"status"`
	Message  string      `json:"message,omitempty"`
}

// OverallProgress accumulates transfer state across every track of the item.
type OverallProgress struct {
	Received int64    `json:"received"`
	Total    int64    `json:"total"`
	ETA      *float64 `json:"eta"`
	Label    string   `json:"label,omitempty"`
}

// TrackSummary is the per-track line item in the snapshot's tracks map.
type TrackSummary struct {
	Received int64       `json:"received"`
	Total    int64       `json:"total"`
	Status   TrackStatus `json:"status"`
	Message  string      `json:"message,omitempty"`
	Title    string      `json:"title,omitempty"`
}

// Summary aggregates terminal track counts for one job. AllDownloaded holds
// iff nothing failed and every known track either downloaded or was skipped.
type Summary struct {
	TotalTracks   int  `json:"total_tracks"`
	Downloaded    int  `json:"downloaded"`
	Skipped       int  `json:"skipped"`
	Failed        int  `json:"failed"`
	AllDownloaded bool `json:"all_downloaded"`
}

// ProgressSnapshot is the full per-job progress view pushed to subscribers
// and embedded in poll responses. Each event supersedes the previous
// snapshot wholesale; consumers must not merge fields across snapshots.
type ProgressSnapshot struct {
	JobID    string                  `json:"job_id"`
	Progress TrackProgress           `json:"progress"`
	Overall  OverallProgress         `json:"overall"`
	Track    *TrackInfo              `json:"track,omitempty"`
	Summary  Summary                 `json:"summary"`
	Tracks   map[string]TrackSummary `json:"tracks"`
}

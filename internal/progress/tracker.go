// Package progress folds raw per-track transfer events into the nested
// per-job snapshot (overall totals, current track, terminal counts) served
// to the browser.
package progress

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/ripper"
)

// rateDecay is the blend factor for the rolling transfer-rate average.
const rateDecay = 0.3

type trackState struct {
	received int64
	total    int64
	title    string
	status   domain.TrackStatus
	message  string

	// counted pins the first terminal status so a re-emitted terminal
	// event cannot double-count the track.
	counted bool
}

// Tracker aggregates events for a single job attempt. It is not safe for
// concurrent use; the registry applies events from its single-writer loop.
type Tracker struct {
	jobID     string
	now       func() time.Time
	startedAt time.Time

	tracks map[string]*trackState
	order  []string

	current    *domain.TrackInfo
	rate       float64 // bytes/sec, decayed
	lastUpdate time.Time
	lastBytes  int64
}

func NewTracker(jobID string) *Tracker {
	return newTracker(jobID, time.Now)
}

func newTracker(jobID string, now func() time.Time) *Tracker {
	t := &Tracker{
		jobID:  jobID,
		now:    now,
		tracks: make(map[string]*trackState),
	}
	t.startedAt = now()
	t.lastUpdate = t.startedAt
	return t
}

// Apply folds one executor event and returns the superseding snapshot.
func (t *Tracker) Apply(ev ripper.TrackEvent) *domain.ProgressSnapshot {
	ts, ok := t.tracks[ev.TrackID]
	if !ok {
		ts = &trackState{total: 1}
		t.tracks[ev.TrackID] = ts
		t.order = append(t.order, ev.TrackID)
	}

	if ev.Total > 0 {
		ts.total = ev.Total
	}
	if ev.Received > 0 || ev.Status == domain.TrackStatusDownloading {
		received := ev.Received
		if received > ts.total {
			received = ts.total
		}
		if received > ts.received {
			t.observeRate(received - ts.received)
			ts.received = received
		}
	}
	if ev.Title != "" {
		ts.title = ev.Title
	}
	// The first terminal status a track reaches is final for this attempt;
	// re-emitted or conflicting terminal events cannot recount it.
	if ev.Status != "" && (!ts.counted || ev.Status == ts.status) {
		ts.status = ev.Status
		if ev.Status.Terminal() {
			ts.counted = true
		}
	}
	if ev.Message != "" {
		ts.message = ev.Message
	}

	t.current = &domain.TrackInfo{
		TrackID:     ev.TrackID,
		Title:       ts.title,
		Album:       ev.Album,
		TrackNumber: ev.TrackNumber,
		DiscNumber:  ev.DiscNumber,
	}

	return t.snapshot(ev.TrackID, ts)
}

func (t *Tracker) observeRate(delta int64) {
	now := t.now()
	elapsed := now.Sub(t.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	inst := float64(delta) / elapsed
	if t.rate == 0 {
		t.rate = inst
	} else {
		t.rate = t.rate*(1-rateDecay) + inst*rateDecay
	}
	t.lastUpdate = now
}

// Summary returns the terminal track counts so far.
func (t *Tracker) Summary() domain.Summary {
	s := domain.Summary{TotalTracks: len(t.tracks)}
	for _, ts := range t.tracks {
		switch ts.status {
		case domain.TrackStatusDownloaded:
			s.Downloaded++
		case domain.TrackStatusSkipped:
			s.Skipped++
		case domain.TrackStatusFailed:
			s.Failed++
		}
	}
	s.AllDownloaded = s.TotalTracks > 0 &&
		s.Failed == 0 &&
		s.Downloaded+s.Skipped == s.TotalTracks
	return s
}

// Snapshot returns the current state without applying an event. Returns nil
// before the first event arrives.
func (t *Tracker) Snapshot() *domain.ProgressSnapshot {
	if t.current == nil {
		return nil
	}
	ts, ok := t.tracks[t.current.TrackID]
	if !ok {
		return nil
	}
	return t.snapshot(t.current.TrackID, ts)
}

func (t *Tracker) snapshot(trackID string, ts *trackState) *domain.ProgressSnapshot {
	var receivedSum, totalSum int64
	tracks := make(map[string]domain.TrackSummary, len(t.tracks))
	for id, st := range t.tracks {
		receivedSum += st.received
		totalSum += effectiveTotal(st)
		tracks[id] = domain.TrackSummary{
			Received: st.received,
			Total:    st.total,
			Status:   st.status,
			Message:  st.message,
			Title:    st.title,
		}
	}

	overall := domain.OverallProgress{
		Received: receivedSum,
		Total:    totalSum,
		ETA:      t.eta(totalSum - receivedSum),
		Label:    humanize.Bytes(uint64(receivedSum)) + " / " + humanize.Bytes(uint64(totalSum)),
	}

	return &domain.ProgressSnapshot{
		JobID: t.jobID,
		Progress: domain.TrackProgress{
			TrackID:  trackID,
			Desc:     ts.title,
			Received: ts.received,
			Total:    ts.total,
			ETA:      t.eta(ts.total - ts.received),
			Status:   ts.status,
			Message:  ts.message,
		},
		Overall: overall,
		Track:   t.current,
		Summary: t.Summary(),
		Tracks:  tracks,
	}
}

// eta converts remaining bytes into seconds using the decayed rate. No
// observed rate means unknown, reported as nil rather than zero.
func (t *Tracker) eta(remaining int64) *float64 {
	if t.rate <= 0 {
		return nil
	}
	if remaining < 0 {
		remaining = 0
	}
	secs := float64(remaining) / t.rate
	return &secs
}

func effectiveTotal(ts *trackState) int64 {
	if ts.total > 0 {
		return ts.total
	}
	return 1
}

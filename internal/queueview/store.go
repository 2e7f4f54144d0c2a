// Package queueview is the client-side view model: it merges the streaming
// event feed and periodic poll snapshots into one canonical queue view. Both
// channels feed the same reducer, so arrival order of equally fresh data does
// not change the outcome.
package queueview

import (
	"sync"

	"github.com/anontester/ripweb/internal/domain"
)

// Store holds the reconciled queue view. Safe for concurrent use: the poll
// loop and the event listener both feed it.
type Store struct {
	mu       sync.RWMutex
	version  int64
	queue    []*domain.Job
	progress map[string]*domain.ProgressSnapshot
	history  map[domain.ItemKey]struct{}

	// results are the last search results, re-flagged whenever history or
	// queue outcomes change.
	results []domain.Item
}

func NewStore() *Store {
	return &Store{
		progress: make(map[string]*domain.ProgressSnapshot),
		history:  make(map[domain.ItemKey]struct{}),
	}
}

// ApplySnapshot replaces the whole view with a full snapshot from either
// channel. A snapshot older than the current view is discarded, so a lagging
// poll response cannot roll back fresher pushed state.
func (s *Store) ApplySnapshot(state domain.QueueState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Version < s.version {
		return false
	}
	s.version = state.Version
	s.queue = state.Queue
	s.progress = make(map[string]*domain.ProgressSnapshot, len(state.Progress))
	for id, snap := range state.Progress {
		s.progress[id] = snap
	}
	for _, e := range state.History {
		s.history[e.Key()] = struct{}{}
	}
	s.reflagLocked()
	return true
}

// ApplyProgress folds one pushed per-job progress update into the view.
// Updates for jobs not in the queue, or already terminal, are stale and
// dropped.
func (s *Store) ApplyProgress(snap *domain.ProgressSnapshot) bool {
	if snap == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.findLocked(snap.JobID)
	if job == nil || job.Status.Terminal() {
		return false
	}
	s.progress[snap.JobID] = snap
	return true
}

// SetResults installs fresh search results and flags the already-downloaded
// ones.
func (s *Store) SetResults(items []domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = items
	s.reflagLocked()
}

// Results returns the current search results with derived downloaded flags.
func (s *Store) Results() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Item, len(s.results))
	copy(out, s.results)
	return out
}

// Queue returns the reconciled job list.
func (s *Store) Queue() []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Job, len(s.queue))
	copy(out, s.queue)
	return out
}

// Job returns the view of one job, or nil.
func (s *Store) Job(jobID string) *domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(jobID)
}

// Progress returns the live snapshot for a job, or nil.
func (s *Store) Progress(jobID string) *domain.ProgressSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress[jobID]
}

// Active reports whether a job should render as live: it has a progress
// snapshot and the server-reported status is not terminal.
func (s *Store) Active(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job := s.findLocked(jobID)
	if job == nil || job.Status.Terminal() {
		return false
	}
	_, ok := s.progress[jobID]
	return ok
}

// Version is the version of the newest snapshot applied so far.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) findLocked(jobID string) *domain.Job {
	for _, job := range s.queue {
		if job.ID == jobID {
			return job
		}
	}
	return nil
}

// reflagLocked recomputes derived downloaded flags on search results from
// history and terminal job outcomes. Flags are derived state and survive
// snapshot replacement.
func (s *Store) reflagLocked() {
	for i := range s.results {
		if _, ok := s.history[s.results[i].Key()]; ok {
			s.results[i].Downloaded = true
			continue
		}
		for _, job := range s.queue {
			if job.Key() == s.results[i].Key() && job.Downloaded {
				s.results[i].Downloaded = true
				break
			}
		}
	}
}

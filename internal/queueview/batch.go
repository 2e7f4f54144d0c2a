package queueview

import (
	"sync"

	"github.com/anontester/ripweb/internal/domain"
)

// Batch tracks the jobs created by one user-initiated submit so the UI can
// fire its completion signal exactly once, no matter how many snapshots
// arrive after the batch finished. A new submit starts a new Batch; the old
// one is simply discarded.
type Batch struct {
	mu     sync.Mutex
	ids    map[string]struct{}
	since  int64
	fired  bool
	failed bool
}

// NewBatch scopes completion tracking to the given jobs. sinceVersion is the
// snapshot version published by the enqueue (the server returns it with the
// created jobs); completion is only judged against views at least that
// fresh, so a snapshot generated before the enqueue can never complete the
// batch. Jobs that were created failed (for example malformed URLs) never
// complete, so they are excluded up front and noted as failures.
func NewBatch(jobs []*domain.Job, sinceVersion int64) *Batch {
	b := &Batch{
		ids:   make(map[string]struct{}, len(jobs)),
		since: sinceVersion,
	}
	for _, job := range jobs {
		if job.Status == domain.JobStatusFailed {
			b.failed = true
			continue
		}
		b.ids[job.ID] = struct{}{}
	}
	return b
}

// Observe inspects a reconciled view and reports whether the batch just
// completed: every tracked job reached a terminal state with none failed or
// aborted. Returns true exactly once; later observations of the same
// completed batch return false.
func (b *Batch) Observe(store *Store) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired || len(b.ids) == 0 {
		return false
	}
	if store.Version() < b.since {
		// The view has not caught up to the enqueue yet; a missing job
		// here means "not seen", not "done".
		return false
	}

	for id := range b.ids {
		job := store.Job(id)
		if job == nil {
			// Completed jobs leave the queue; gone means done.
			continue
		}
		if !job.Status.Terminal() {
			return false
		}
		if job.Status != domain.JobStatusCompleted {
			b.failed = true
		}
	}

	b.fired = true
	return !b.failed
}

// NeedsAttention reports whether any job in the batch ended in a non-success
// terminal state.
func (b *Batch) NeedsAttention() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}

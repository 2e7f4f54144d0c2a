package queueview

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/logger"
)

func job(id string, status domain.JobStatus) *domain.Job {
	return &domain.Job{
		ID:        id,
		Source:    "qobuz",
		MediaType: domain.MediaTypeAlbum,
		ItemID:    "item-" + id,
		Title:     "Job " + id,
		Status:    status,
	}
}

func snapshot(version int64, jobs ...*domain.Job) domain.QueueState {
	return domain.QueueState{
		Version:  version,
		Queue:    jobs,
		Progress: map[string]*domain.ProgressSnapshot{},
	}
}

func TestSnapshotFullyReplacesView(t *testing.T) {
	s := NewStore()

	require.True(t, s.ApplySnapshot(snapshot(1, job("a", domain.JobStatusQueued), job("b", domain.JobStatusQueued))))
	require.True(t, s.ApplySnapshot(snapshot(2, job("b", domain.JobStatusInProgress))))

	assert.Len(t, s.Queue(), 1)
	assert.Nil(t, s.Job("a"))
	require.NotNil(t, s.Job("b"))
	assert.Equal(t, domain.JobStatusInProgress, s.Job("b").Status)
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	s := NewStore()

	// Push delivered the fresher view first; the lagging poll must not
	// roll it back.
	require.True(t, s.ApplySnapshot(snapshot(5, job("a", domain.JobStatusCompleted))))
	assert.False(t, s.ApplySnapshot(snapshot(3, job("a", domain.JobStatusInProgress))))

	assert.Equal(t, domain.JobStatusCompleted, s.Job("a").Status)
	assert.Equal(t, int64(5), s.Version())
}

func TestEqualVersionSnapshotsCommute(t *testing.T) {
	a := snapshot(4, job("a", domain.JobStatusInProgress))
	b := snapshot(4, job("a", domain.JobStatusInProgress))

	s1 := NewStore()
	s1.ApplySnapshot(a)
	s1.ApplySnapshot(b)
	s2 := NewStore()
	s2.ApplySnapshot(b)
	s2.ApplySnapshot(a)

	assert.Equal(t, s1.Job("a").Status, s2.Job("a").Status)
	assert.Equal(t, s1.Version(), s2.Version())
}

func TestProgressForUnknownOrTerminalJobDropped(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshot(1, job("a", domain.JobStatusFailed)))

	assert.False(t, s.ApplyProgress(&domain.ProgressSnapshot{JobID: "ghost"}))
	assert.False(t, s.ApplyProgress(&domain.ProgressSnapshot{JobID: "a"}))
	assert.Nil(t, s.Progress("a"))
}

func TestActiveRequiresProgressAndLiveStatus(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snapshot(1, job("a", domain.JobStatusInProgress), job("b", domain.JobStatusInProgress)))

	require.True(t, s.ApplyProgress(&domain.ProgressSnapshot{JobID: "a"}))
	assert.True(t, s.Active("a"))
	// No live snapshot yet
	assert.False(t, s.Active("b"))

	// A terminal status ends liveness even with a snapshot present
	s.ApplySnapshot(snapshot(2, job("a", domain.JobStatusPartial)))
	assert.False(t, s.Active("a"))
}

func TestDownloadedFlagsDerivedAndPreserved(t *testing.T) {
	s := NewStore()
	s.SetResults([]domain.Item{
		{ID: "item-a", Source: "qobuz", MediaType: domain.MediaTypeAlbum},
		{ID: "item-b", Source: "qobuz", MediaType: domain.MediaTypeAlbum},
	})

	state := snapshot(1)
	state.History = []domain.HistoryEntry{{ID: "item-a", Source: "qobuz"}}
	s.ApplySnapshot(state)

	results := s.Results()
	assert.True(t, results[0].Downloaded)
	assert.False(t, results[1].Downloaded)

	// A later snapshot without history does not clear the derived flag.
	s.ApplySnapshot(snapshot(2))
	assert.True(t, s.Results()[0].Downloaded)
}

func TestBatchCompletionFiresExactlyOnce(t *testing.T) {
	s := NewStore()
	jobs := []*domain.Job{
		job("a", domain.JobStatusQueued),
		job("b", domain.JobStatusQueued),
		job("c", domain.JobStatusQueued),
	}
	s.ApplySnapshot(snapshot(1, jobs...))
	batch := NewBatch(jobs, 1)

	// Still running across the first updates.
	s.ApplySnapshot(snapshot(2, job("a", domain.JobStatusInProgress), jobs[1], jobs[2]))
	assert.False(t, batch.Observe(s))
	s.ApplySnapshot(snapshot(3, job("b", domain.JobStatusInProgress), jobs[2]))
	assert.False(t, batch.Observe(s))

	// All three completed and gone from the queue: fires once.
	s.ApplySnapshot(snapshot(4))
	assert.True(t, batch.Observe(s))

	// Two more updates with the batch already complete: never again.
	s.ApplySnapshot(snapshot(5))
	assert.False(t, batch.Observe(s))
	s.ApplySnapshot(snapshot(6))
	assert.False(t, batch.Observe(s))
}

func TestBatchWithFailureSignalsAttention(t *testing.T) {
	s := NewStore()
	jobs := []*domain.Job{
		job("a", domain.JobStatusQueued),
		job("b", domain.JobStatusQueued),
	}
	s.ApplySnapshot(snapshot(1, jobs...))
	batch := NewBatch(jobs, 1)

	s.ApplySnapshot(snapshot(2, job("a", domain.JobStatusPartial)))
	assert.False(t, batch.Observe(s))
	assert.True(t, batch.NeedsAttention())
}

func TestBatchExcludesBornFailedJobs(t *testing.T) {
	s := NewStore()
	good := job("a", domain.JobStatusQueued)
	bad := job("b", domain.JobStatusFailed)
	s.ApplySnapshot(snapshot(1, good, bad))
	batch := NewBatch([]*domain.Job{good, bad}, 1)

	s.ApplySnapshot(snapshot(2, bad))
	assert.False(t, batch.Observe(s))
	assert.True(t, batch.NeedsAttention())
}

func TestBatchWaitsForPostEnqueueSnapshot(t *testing.T) {
	s := NewStore()
	jobs := []*domain.Job{job("a", domain.JobStatusQueued)}
	batch := NewBatch(jobs, 3)

	// Nothing observed yet: the batch's jobs are unknown to the store, but
	// that must not read as "all done".
	assert.False(t, batch.Observe(s))

	// A snapshot generated before the enqueue cannot complete the batch
	// either, even though it does not contain the batch's jobs.
	s.ApplySnapshot(snapshot(2))
	assert.False(t, batch.Observe(s))

	// Once the view catches up past the enqueue, gone means done.
	s.ApplySnapshot(snapshot(3))
	assert.True(t, batch.Observe(s))
}

func TestPollerAppliesSnapshots(t *testing.T) {
	s := NewStore()
	var version atomic.Int64
	fetch := func(ctx context.Context) (domain.QueueState, error) {
		return snapshot(version.Add(1), job("a", domain.JobStatusQueued)), nil
	}

	var applied atomic.Int32
	p := NewPoller(s, fetch, 10*time.Millisecond, logger.Default())
	p.OnSnapshot = func(domain.QueueState) { applied.Add(1) }
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return applied.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, s.Job("a"))
}

func TestPollerPausesWhenHidden(t *testing.T) {
	s := NewStore()
	var calls atomic.Int32
	fetch := func(ctx context.Context) (domain.QueueState, error) {
		calls.Add(1)
		return snapshot(int64(calls.Load())), nil
	}

	p := NewPoller(s, fetch, 10*time.Millisecond, logger.Default())
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, time.Millisecond)

	p.SetVisible(false)
	time.Sleep(30 * time.Millisecond)
	paused := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, calls.Load(), "Expected no polls while hidden")

	// Visibility resumes polling immediately.
	p.SetVisible(true)
	require.Eventually(t, func() bool {
		return calls.Load() > paused
	}, 2*time.Second, time.Millisecond)
}

func TestPollerCancelsSupersededFetch(t *testing.T) {
	s := NewStore()
	started := make(chan struct{}, 8)
	cancelled := make(chan struct{}, 8)
	fetch := func(ctx context.Context) (domain.QueueState, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			cancelled <- struct{}{}
			return domain.QueueState{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return snapshot(1), nil
		}
	}

	p := NewPoller(s, fetch, time.Hour, logger.Default())
	p.Start()
	defer p.Stop()

	<-started
	p.Kick()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the superseded fetch to be cancelled")
	}
}

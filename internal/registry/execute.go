package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/events"
	"github.com/anontester/ripweb/internal/progress"
	"github.com/anontester/ripweb/internal/ripper"
)

// execute drives one job through the executor adapter. It runs on its own
// goroutine; every state mutation is posted back to the loop. gen identifies
// this execution so closures from a superseded run (abort followed by an
// immediate retry) land as no-ops instead of clobbering the new one.
func (r *Registry) execute(ctx context.Context, jobID string, gen uint64) {
	defer r.execWG.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Panic in job execution", "job_id", jobID, "panic", rec)
			r.post(func() {
				job := r.liveJob(jobID, gen)
				if job != nil && !job.Status.Terminal() {
					job.Status = domain.JobStatusFailed
					job.Error = fmt.Sprintf("panic: %v", rec)
					r.publishQueue()
				}
			})
		}
	}()

	// A queued job waits here until a concurrency slot frees up.
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.post(func() { r.settleCancelled(jobID, gen) })
		return
	}
	defer r.sem.Release(1)

	req, proceed := r.beginExecution(jobID, gen)
	if !proceed {
		return
	}

	log := r.log.WithJob(jobID)

	// URL submissions carry no metadata; resolve them into a real item
	// before ripping so the queue row shows title and artist.
	if req.Item.MediaType == domain.MediaTypeURL || req.Item.MediaType == domain.MediaTypeLastFM {
		resolved, err := r.rip.Resolve(ctx, req.Item.URL)
		if err != nil {
			log.Error("URL resolution failed", "url", req.Item.URL, "error", err)
			r.post(func() { r.settleFailed(jobID, gen, fmt.Errorf("%w: %v", ripper.ErrResolution, err)) })
			return
		}
		r.call(func() {
			if job := r.liveJob(jobID, gen); job != nil {
				if resolved.Title != "" {
					job.Title = resolved.Title
				}
				job.Artist = resolved.Artist
				r.publishQueue()
			}
		})
		resolved.URL = req.Item.URL
		resolved.ID = req.Item.ID
		req.Item = resolved
	}

	emit := func(ev ripper.TrackEvent) {
		r.post(func() { r.applyTrackEvent(jobID, gen, ev) })
	}

	var ripErr error
	backoff := r.RetryBackoff
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.call(func() { r.markRetrying(jobID, gen, ripErr, attempt) })
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				r.post(func() { r.settleCancelled(jobID, gen) })
				return
			}
			backoff = backoff * 3 / 2
			if !r.resumeAttempt(jobID, gen) {
				return
			}
		}

		ripErr = r.rip.Rip(ctx, req, emit)
		if ripErr == nil {
			break
		}
		if ctx.Err() != nil {
			r.post(func() { r.settleCancelled(jobID, gen) })
			return
		}
		log.Error("Error during download", "attempt", attempt, "error", ripErr)
	}

	r.post(func() { r.settle(jobID, gen, ripErr) })
}

// liveJob returns the job only while gen is the job's current execution
// generation. A stale generation, or a dropped job, yields nil.
func (r *Registry) liveJob(jobID string, gen uint64) *domain.Job {
	if r.gens[jobID] != gen {
		return nil
	}
	return r.jobs[jobID]
}

// beginExecution transitions queued → in_progress and snapshots the request.
// Returns proceed=false if the job was aborted or removed while waiting.
func (r *Registry) beginExecution(jobID string, gen uint64) (ripper.Request, bool) {
	var req ripper.Request
	proceed := false
	r.call(func() {
		job := r.liveJob(jobID, gen)
		if job == nil || job.Status != domain.JobStatusQueued {
			return
		}
		job.Status = domain.JobStatusInProgress
		job.Attempts++
		job.Error = ""
		r.trackers[jobID] = progress.NewTracker(jobID)
		delete(r.snaps, jobID)
		req = ripper.Request{Item: job.Item(), ForceNoDB: job.ForceNoDB}
		// The cache bypass is consumed by this attempt.
		job.ForceNoDB = false
		proceed = true
		r.log.Info("Processing job", "job_id", jobID, "source", job.Source, "media_type", job.MediaType, "item_id", job.ItemID, "attempts", job.Attempts)
		r.publishQueue()
	})
	return req, proceed
}

// resumeAttempt moves a retrying job back to in_progress for the next
// transparent attempt. The attempt starts over, so the previous tracker and
// its pinned per-track outcomes are discarded.
func (r *Registry) resumeAttempt(jobID string, gen uint64) bool {
	ok := false
	r.call(func() {
		job := r.liveJob(jobID, gen)
		if job == nil || job.Status != domain.JobStatusRetrying {
			return
		}
		job.Status = domain.JobStatusInProgress
		job.Attempts++
		r.trackers[jobID] = progress.NewTracker(jobID)
		delete(r.snaps, jobID)
		ok = true
		r.publishQueue()
	})
	return ok
}

func (r *Registry) markRetrying(jobID string, gen uint64, cause error, attempt int) {
	job := r.liveJob(jobID, gen)
	if job == nil || job.Status != domain.JobStatusInProgress {
		return
	}
	job.Status = domain.JobStatusRetrying
	if cause != nil {
		job.Error = cause.Error()
	}
	r.log.Warn("Retrying after transient failure", "job_id", jobID, "attempt", attempt, "error", job.Error)
	r.publishQueue()
}

// applyTrackEvent folds an executor progress message into the job's tracker
// and pushes the superseding snapshot to subscribers.
func (r *Registry) applyTrackEvent(jobID string, gen uint64, ev ripper.TrackEvent) {
	job := r.liveJob(jobID, gen)
	if job == nil || job.Status.Terminal() {
		// Stale event from a cancelled or superseded execution.
		return
	}
	tracker, ok := r.trackers[jobID]
	if !ok {
		return
	}
	snap := tracker.Apply(ev)
	r.snaps[jobID] = snap
	r.version++

	if ev.Status.Terminal() {
		r.log.Debug("Track settled",
			"job_id", jobID,
			"track_id", ev.TrackID,
			"status", ev.Status,
			"size", humanize.Bytes(uint64(ev.Total)))
	}

	r.broker.PublishProgress(jobID, ev.Status.Terminal(), events.Event{
		Name: events.EventProgress,
		Data: snap,
	})
}

// settle applies the terminal outcome of an execution.
func (r *Registry) settle(jobID string, gen uint64, ripErr error) {
	job := r.liveJob(jobID, gen)
	if job == nil {
		return
	}
	if job.Status.Terminal() {
		// Abort won the race; the executor outcome is discarded.
		return
	}
	delete(r.cancels, jobID)

	if ripErr != nil {
		r.settleFailed(jobID, gen, ripErr)
		return
	}

	summary := domain.Summary{}
	if tracker, ok := r.trackers[jobID]; ok {
		summary = tracker.Summary()
	}

	if summary.AllDownloaded {
		job.Status = domain.JobStatusCompleted
		job.Downloaded = true
		r.recordDownload(job)
		r.removeSavedFor(job.Key())
		r.log.Info("Job completed", "job_id", jobID, "attempts", job.Attempts, "tracks", summary.TotalTracks)
		// Completed jobs leave the queue on their own; everything else
		// stays visible for retry or save.
		r.dropJob(jobID)
		r.publishQueue()
		return
	}

	job.Status = domain.JobStatusPartial
	job.Downloaded = false
	job.Error = fmt.Sprintf("Tracks failed: %d; skipped: %d", summary.Failed, summary.Skipped)
	r.broker.ForgetJob(jobID)
	r.log.Warn("Job finished partially", "job_id", jobID, "downloaded", summary.Downloaded, "failed", summary.Failed, "skipped", summary.Skipped)
	r.publishQueue()
}

func (r *Registry) settleFailed(jobID string, gen uint64, cause error) {
	job := r.liveJob(jobID, gen)
	if job == nil || job.Status.Terminal() {
		return
	}
	delete(r.cancels, jobID)
	job.Status = domain.JobStatusFailed
	job.Error = cause.Error()
	r.broker.ForgetJob(jobID)
	r.log.Error("Job failed", "job_id", jobID, "attempts", job.Attempts, "error", job.Error)
	r.publishQueue()
}

// settleCancelled finalizes a job whose execution context was cancelled.
// User aborts already set the status; this covers shutdown.
func (r *Registry) settleCancelled(jobID string, gen uint64) {
	job := r.liveJob(jobID, gen)
	if job == nil || job.Status.Terminal() {
		return
	}
	delete(r.cancels, jobID)
	job.Status = domain.JobStatusAborted
	delete(r.snaps, jobID)
	delete(r.trackers, jobID)
	r.broker.ForgetJob(jobID)
	r.publishQueue()
}

// removeSavedFor clears a saved entry once its item downloads successfully.
func (r *Registry) removeSavedFor(key domain.ItemKey) {
	if err := r.saved.Remove(key); err != nil {
		r.log.Error("Failed to remove saved item", "source", key.Source, "item_id", key.ID, "error", err)
		return
	}
	r.publishSaved()
}

// Package registry owns the download queue: every job, its progress, and
// every transition. All mutation is funneled through a single goroutine so
// user actions and executor callbacks can never race; executors and HTTP
// handlers talk to the loop by posting closures to its mailbox.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/events"
	"github.com/anontester/ripweb/internal/logger"
	"github.com/anontester/ripweb/internal/progress"
	"github.com/anontester/ripweb/internal/ripper"
	"github.com/anontester/ripweb/internal/store"
)

var (
	ErrNotFound   = errors.New("job not found")
	ErrJobRunning = errors.New("job is in progress")
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = time.Second
	mailboxSize         = 256
)

// Registry is the queue core. Create with NewRegistry, then Start; Stop
// drains in-flight jobs before returning.
type Registry struct {
	log     *logger.Logger
	rip     ripper.Ripper
	saved   *store.SavedRepo
	history *store.HistoryRepo
	broker  *events.Broker

	// MaxAttempts and RetryBackoff govern transparent retries of transient
	// executor failures within one user-visible attempt. Set before Start.
	MaxAttempts  int
	RetryBackoff time.Duration

	sem     *semaphore.Weighted
	mailbox chan func()
	quit    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	execWG sync.WaitGroup

	// State below is owned by the loop goroutine. Nothing outside the
	// loop may touch it.
	jobs       map[string]*domain.Job
	order      []string
	trackers   map[string]*progress.Tracker
	snaps      map[string]*domain.ProgressSnapshot
	cancels    map[string]context.CancelFunc
	gens       map[string]uint64
	histCache  []domain.HistoryEntry
	downloaded map[domain.ItemKey]struct{}
	version    int64
}

func NewRegistry(rip ripper.Ripper, saved *store.SavedRepo, history *store.HistoryRepo, broker *events.Broker, maxConcurrent int, log *logger.Logger) (*Registry, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	entries, err := history.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load download history: %w", err)
	}
	index := make(map[domain.ItemKey]struct{}, len(entries))
	for _, e := range entries {
		index[e.Key()] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		log:          log.WithComponent("registry"),
		rip:          rip,
		saved:        saved,
		history:      history,
		broker:       broker,
		MaxAttempts:  defaultMaxAttempts,
		RetryBackoff: defaultRetryBackoff,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		mailbox:      make(chan func(), mailboxSize),
		quit:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		jobs:         make(map[string]*domain.Job),
		trackers:     make(map[string]*progress.Tracker),
		snaps:        make(map[string]*domain.ProgressSnapshot),
		cancels:      make(map[string]context.CancelFunc),
		gens:         make(map[string]uint64),
		histCache:    entries,
		downloaded:   index,
	}, nil
}

// Start launches the single-writer loop.
func (r *Registry) Start() {
	r.loopWG.Add(1)
	go r.loop()
}

// Stop cancels running executions, waits for them to settle, then stops the
// loop. Safe to call once.
func (r *Registry) Stop() {
	r.log.Info("Stopping registry")
	r.cancel()
	r.execWG.Wait()
	close(r.quit)
	r.loopWG.Wait()
}

func (r *Registry) loop() {
	defer r.loopWG.Done()
	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.quit:
			// Drain anything already posted before exiting.
			for {
				select {
				case fn := <-r.mailbox:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post schedules fn on the loop without waiting.
func (r *Registry) post(fn func()) {
	select {
	case r.mailbox <- fn:
	case <-r.quit:
	}
}

// call schedules fn on the loop and waits for it to run.
func (r *Registry) call(fn func()) {
	done := make(chan struct{})
	select {
	case r.mailbox <- func() {
		fn()
		close(done)
	}:
		<-done
	case <-r.quit:
	}
}

// Enqueue creates one queued job per item and begins asynchronous
// execution. An item already present in the queue keeps its existing job.
func (r *Registry) Enqueue(items []domain.Item) []*domain.Job {
	var out []*domain.Job
	r.call(func() {
		for _, item := range items {
			if existing := r.findByKey(item.Key()); existing != nil {
				r.log.Info("Skipping duplicate enqueue", "source", item.Source, "item_id", item.ID, "existing_job", existing.ID)
				copied := *existing
				out = append(out, &copied)
				continue
			}
			job := r.createJob(item)
			copied := *job
			out = append(out, &copied)
			r.launch(job.ID)
		}
		r.publishQueue()
	})
	return out
}

// EnqueueURLs creates one job per URL. A structurally invalid URL yields a
// failed job with a resolution error instead of rejecting the batch.
func (r *Registry) EnqueueURLs(urls []string) []*domain.Job {
	var out []*domain.Job
	r.call(func() {
		for _, rawURL := range urls {
			item, err := ripper.NormalizeURL(rawURL)
			if err != nil {
				job := r.createJob(domain.Item{
					ID:        rawURL,
					Source:    string(domain.MediaTypeURL),
					MediaType: domain.MediaTypeURL,
					Title:     rawURL,
					URL:       rawURL,
				})
				job.Status = domain.JobStatusFailed
				job.Error = fmt.Sprintf("%v: %s", ripper.ErrResolution, rawURL)
				r.log.Warn("Rejected malformed URL", "job_id", job.ID, "url", rawURL)
				copied := *job
				out = append(out, &copied)
				continue
			}
			if existing := r.findByKey(item.Key()); existing != nil {
				copied := *existing
				out = append(out, &copied)
				continue
			}
			job := r.createJob(item)
			copied := *job
			out = append(out, &copied)
			r.launch(job.ID)
		}
		r.publishQueue()
	})
	return out
}

// Retry resets a settled job to queued and re-enters execution.
func (r *Registry) Retry(jobID string) error {
	return r.retry(jobID, false)
}

// ForceRedownload retries with the executor's dedup cache bypassed for the
// next attempt only.
func (r *Registry) ForceRedownload(jobID string) error {
	return r.retry(jobID, true)
}

func (r *Registry) retry(jobID string, force bool) error {
	var err error
	r.call(func() {
		job, ok := r.jobs[jobID]
		if !ok {
			err = ErrNotFound
			return
		}
		if job.Status == domain.JobStatusInProgress || job.Status == domain.JobStatusRetrying {
			err = ErrJobRunning
			return
		}
		job.Status = domain.JobStatusQueued
		job.Error = ""
		job.Downloaded = false
		if force {
			job.ForceNoDB = true
		}
		delete(r.snaps, jobID)
		delete(r.trackers, jobID)
		r.log.Info("Retrying job", "job_id", jobID, "force_no_db", force, "attempts", job.Attempts)
		r.launch(jobID)
		r.publishQueue()
	})
	return err
}

// Abort cancels a queued or running job. The job stays visible as aborted
// until the user saves or dismisses it. Aborting a job that already reached
// a terminal state is a no-op, so an abort racing a completion resolves to
// exactly one of the two outcomes.
func (r *Registry) Abort(jobID string) error {
	var err error
	r.call(func() {
		job, ok := r.jobs[jobID]
		if !ok {
			err = ErrNotFound
			return
		}
		if job.Status.Terminal() {
			return
		}
		job.Status = domain.JobStatusAborted
		if cancel, ok := r.cancels[jobID]; ok {
			cancel()
			delete(r.cancels, jobID)
		}
		delete(r.snaps, jobID)
		delete(r.trackers, jobID)
		r.broker.ForgetJob(jobID)
		r.log.Warn("Aborted job", "job_id", jobID)
		r.publishQueue()
	})
	return err
}

// Save copies the job's item into the saved list and removes the job from
// the queue, cancelling it first if it is still running.
func (r *Registry) Save(jobID string) error {
	var err error
	r.call(func() {
		job, ok := r.jobs[jobID]
		if !ok {
			err = ErrNotFound
			return
		}
		item := job.Item()
		if cancel, ok := r.cancels[jobID]; ok {
			cancel()
			delete(r.cancels, jobID)
		}
		r.dropJob(jobID)
		if saveErr := r.saved.Add(domain.SavedItem{
			ID:        item.ID,
			Source:    item.Source,
			MediaType: item.MediaType,
			Title:     item.Title,
			Artist:    item.Artist,
			URL:       item.URL,
		}); saveErr != nil {
			err = saveErr
			return
		}
		r.log.Info("Saved job for later", "job_id", jobID, "source", item.Source, "item_id", item.ID)
		r.publishQueue()
		r.publishSaved()
	})
	return err
}

// Snapshot returns a full consistent read of queue, progress, and history.
func (r *Registry) Snapshot() domain.QueueState {
	var state domain.QueueState
	r.call(func() {
		state = r.statePayload()
	})
	return state
}

// Version returns the current snapshot version without copying state.
func (r *Registry) Version() int64 {
	var v int64
	r.call(func() { v = r.version })
	return v
}

// Downloaded reports whether an item has ever completed, from history or
// this session.
func (r *Registry) Downloaded(key domain.ItemKey) bool {
	var ok bool
	r.call(func() {
		_, ok = r.downloaded[key]
	})
	return ok
}

// MarkDownloaded sets the derived downloaded flag on search results.
func (r *Registry) MarkDownloaded(items []domain.Item) {
	r.call(func() {
		for i := range items {
			if _, ok := r.downloaded[items[i].Key()]; ok {
				items[i].Downloaded = true
			}
		}
	})
}

// --- loop-side helpers; must only run on the loop goroutine ---

func (r *Registry) findByKey(key domain.ItemKey) *domain.Job {
	for _, job := range r.jobs {
		if job.Key() == key {
			return job
		}
	}
	return nil
}

func (r *Registry) createJob(item domain.Item) *domain.Job {
	job := &domain.Job{
		ID:        uuid.New().String(),
		Source:    item.Source,
		MediaType: item.MediaType,
		ItemID:    item.ID,
		Title:     item.Title,
		Artist:    item.Artist,
		URL:       item.URL,
		Status:    domain.JobStatusQueued,
	}
	if job.Title == "" {
		job.Title = item.ID
	}
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.log.Info("Enqueued item", "job_id", job.ID, "source", job.Source, "media_type", job.MediaType, "item_id", job.ItemID, "title", job.Title)
	return job
}

// launch starts a new execution generation for the job. Bumping the
// generation invalidates closures still in flight from a previous execution.
func (r *Registry) launch(jobID string) {
	jobCtx, cancel := context.WithCancel(r.ctx)
	r.cancels[jobID] = cancel
	r.gens[jobID]++
	gen := r.gens[jobID]
	r.execWG.Add(1)
	go r.execute(jobCtx, jobID, gen)
}

func (r *Registry) dropJob(jobID string) {
	delete(r.jobs, jobID)
	for i, id := range r.order {
		if id == jobID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.snaps, jobID)
	delete(r.trackers, jobID)
	delete(r.cancels, jobID)
	delete(r.gens, jobID)
	r.broker.ForgetJob(jobID)
}

func (r *Registry) publishQueue() {
	r.version++
	r.broker.Publish(events.Event{Name: events.EventQueue, Data: r.statePayload()})
}

func (r *Registry) publishSaved() {
	items, err := r.saved.List()
	if err != nil {
		r.log.Error("Failed to list saved items", "error", err)
		return
	}
	r.broker.Publish(events.Event{Name: events.EventSaved, Data: items})
}

func (r *Registry) statePayload() domain.QueueState {
	queue := make([]*domain.Job, 0, len(r.order))
	for _, id := range r.order {
		if job, ok := r.jobs[id]; ok {
			copied := *job
			queue = append(queue, &copied)
		}
	}
	progressMap := make(map[string]*domain.ProgressSnapshot, len(r.snaps))
	for id, snap := range r.snaps {
		progressMap[id] = snap
	}
	history := make([]domain.HistoryEntry, len(r.histCache))
	copy(history, r.histCache)
	return domain.QueueState{
		Version:  r.version,
		Queue:    queue,
		Progress: progressMap,
		History:  history,
	}
}

func (r *Registry) recordDownload(job *domain.Job) {
	key := job.Key()
	if _, ok := r.downloaded[key]; ok {
		return
	}
	entry := domain.HistoryEntry{
		ID:        job.ItemID,
		Source:    job.Source,
		MediaType: job.MediaType,
		Title:     job.Title,
		Artist:    job.Artist,
		URL:       job.URL,
	}
	if err := r.history.Add(entry); err != nil {
		r.log.Error("Failed to record download history", "job_id", job.ID, "error", err)
		return
	}
	r.downloaded[key] = struct{}{}
	r.histCache = append(r.histCache, entry)
}

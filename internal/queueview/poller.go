package queueview

import (
	"context"
	"sync"
	"time"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/logger"
)

const defaultPollInterval = 3 * time.Second

// FetchFunc retrieves a full snapshot, typically GET /api/queue.
type FetchFunc func(ctx context.Context) (domain.QueueState, error)

// Poller periodically fetches full snapshots into a Store as the fallback
// for missed push events. It pauses while the tab is hidden and cancels an
// in-flight fetch before starting the next one, so a stale response can
// never be applied after a fresher one.
type Poller struct {
	store    *Store
	fetch    FetchFunc
	interval time.Duration
	log      *logger.Logger

	// OnSnapshot, when set, runs after each applied snapshot.
	OnSnapshot func(domain.QueueState)

	mu       sync.Mutex
	visible  bool
	running  bool
	cancel   context.CancelFunc
	inflight context.CancelFunc
	wake     chan struct{}
	wg       sync.WaitGroup
}

func NewPoller(store *Store, fetch FetchFunc, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		store:    store,
		fetch:    fetch,
		interval: interval,
		log:      log.WithComponent("poller"),
		visible:  true,
		wake:     make(chan struct{}, 1),
	}
}

// Start begins the poll loop. Stop must be called to release it.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels any in-flight fetch and halts the loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

// SetVisible pauses polling while hidden and polls immediately when the tab
// becomes visible again.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	was := p.visible
	p.visible = visible
	p.mu.Unlock()
	if visible && !was {
		p.Kick()
	}
}

// Kick requests an immediate poll, used right after a user action so the
// view catches up without waiting a full interval.
func (p *Poller) Kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			visible := p.visible
			p.mu.Unlock()
			if !visible {
				continue
			}
			p.pollOnce(ctx)
		case <-p.wake:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce starts one fetch, first cancelling any fetch still in flight so
// its stale response can never be applied after this one.
func (p *Poller) pollOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.inflight != nil {
		p.inflight()
	}
	p.inflight = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		state, err := p.fetch(fetchCtx)
		if err != nil {
			if ctx.Err() == nil && fetchCtx.Err() == nil {
				p.log.Warn("Poll failed", "error", err)
			}
			return
		}
		if fetchCtx.Err() != nil {
			// Superseded while decoding; drop the stale response.
			return
		}
		if p.store.ApplySnapshot(state) && p.OnSnapshot != nil {
			p.OnSnapshot(state)
		}
	}()
}

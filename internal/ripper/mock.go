package ripper

import (
	"context"
	"fmt"
	"time"

	"github.com/anontester/ripweb/internal/domain"
)

// MockRipper is an in-process stand-in for the real executor. It serves
// wiring before the provider backend is configured and drives the
// registry/progress tests.
type MockRipper struct {
	// TracksPerItem controls how many tracks a ripped item pretends to
	// have. Zero means 2.
	TracksPerItem int

	// StepDelay is the pause between emitted byte updates.
	StepDelay time.Duration

	// FailTracks marks track ordinals (1-based) that report failed.
	FailTracks map[int]bool

	// SkipDownloaded makes every track report skipped unless the request
	// sets ForceNoDB, mimicking the executor's dedup cache.
	SkipDownloaded bool

	// RipErr, when set, is returned from Rip after the first track event.
	RipErr error
}

func (m *MockRipper) Search(ctx context.Context, source string, mediaType domain.MediaType, query string, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 3
	}
	items := make([]domain.Item, 0, limit)
	for i := 1; i <= limit; i++ {
		items = append(items, domain.Item{
			ID:        fmt.Sprintf("mock-%s-%d", mediaType, i),
			Source:    source,
			MediaType: mediaType,
			Title:     fmt.Sprintf("%s %d", query, i),
			Artist:    "Mock Artist",
			Tracks:    m.trackCount(),
			Year:      "2024",
		})
	}
	return items, nil
}

func (m *MockRipper) Resolve(ctx context.Context, rawURL string) (domain.Item, error) {
	item, err := NormalizeURL(rawURL)
	if err != nil {
		return domain.Item{}, err
	}
	item.Title = "Resolved " + rawURL
	item.Artist = "Mock Artist"
	return item, nil
}

func (m *MockRipper) Rip(ctx context.Context, req Request, emit EmitFunc) error {
	const trackSize = int64(1 << 20)

	for i := 1; i <= m.trackCount(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		trackID := fmt.Sprintf("%s-t%d", req.Item.ID, i)
		title := fmt.Sprintf("%s - Track %d", req.Item.Title, i)
		base := TrackEvent{
			TrackID:     trackID,
			Title:       title,
			Album:       req.Item.Title,
			TrackNumber: i,
		}

		ev := base
		ev.Status = domain.TrackStatusResolving
		ev.Total = trackSize
		emit(ev)

		if m.RipErr != nil {
			return m.RipErr
		}

		if m.SkipDownloaded && !req.ForceNoDB {
			ev = base
			ev.Status = domain.TrackStatusSkipped
			ev.Received = trackSize
			ev.Total = trackSize
			ev.Message = "Already downloaded in database"
			emit(ev)
			continue
		}

		ev = base
		ev.Status = domain.TrackStatusDownloading
		ev.Total = trackSize
		emit(ev)

		for _, frac := range []int64{4, 2, 1} {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev = base
			ev.Status = domain.TrackStatusDownloading
			ev.Received = trackSize / frac
			ev.Total = trackSize
			emit(ev)
			if m.StepDelay > 0 {
				time.Sleep(m.StepDelay)
			}
		}

		ev = base
		ev.Received = trackSize
		ev.Total = trackSize
		if m.FailTracks[i] {
			ev.Status = domain.TrackStatusFailed
			ev.Message = "mock transfer error"
		} else {
			ev.Status = domain.TrackStatusDownloaded
		}
		emit(ev)
	}
	return nil
}

func (m *MockRipper) trackCount() int {
	if m.TracksPerItem > 0 {
		return m.TracksPerItem
	}
	return 2
}

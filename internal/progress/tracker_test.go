package progress

import (
	"testing"
	"time"

	"github.com/anontester/ripweb/internal/domain"
	"github.com/anontester/ripweb/internal/ripper"
)

// fakeClock advances only when told, so rate and ETA math is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newTracker("job-1", clock.now), clock
}

func TestApplyAccumulatesBytes(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Title: "One", Status: domain.TrackStatusDownloading, Total: 1000})
	clock.advance(time.Second)
	snap := tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Received: 500, Total: 1000})

	if snap.Progress.Received != 500 {
		t.Errorf("Expected 500 received, got %d", snap.Progress.Received)
	}
	if snap.Progress.Total != 1000 {
		t.Errorf("Expected 1000 total, got %d", snap.Progress.Total)
	}
	if snap.Progress.Desc != "One" {
		t.Errorf("Expected title carried forward, got %q", snap.Progress.Desc)
	}
	if snap.Overall.Received != 500 || snap.Overall.Total != 1000 {
		t.Errorf("Expected overall 500/1000, got %d/%d", snap.Overall.Received, snap.Overall.Total)
	}
}

func TestReceivedNeverRegresses(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Received: 800, Total: 1000})
	clock.advance(time.Second)
	snap := tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Received: 300, Total: 1000})

	if snap.Progress.Received != 800 {
		t.Errorf("Expected received to stay at 800, got %d", snap.Progress.Received)
	}
}

func TestReceivedClampedToTotal(t *testing.T) {
	tr, _ := newTestTracker()

	snap := tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Received: 5000, Total: 1000})
	if snap.Progress.Received != 1000 {
		t.Errorf("Expected received clamped to total, got %d", snap.Progress.Received)
	}
}

func TestETAUnknownWithoutRate(t *testing.T) {
	tr, _ := newTestTracker()

	snap := tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusResolving, Total: 1000})
	if snap.Progress.ETA != nil {
		t.Errorf("Expected nil ETA before any transfer, got %v", *snap.Progress.ETA)
	}
	if snap.Overall.ETA != nil {
		t.Errorf("Expected nil overall ETA before any transfer, got %v", *snap.Overall.ETA)
	}
}

func TestETAFromObservedRate(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Total: 1000})
	clock.advance(time.Second)
	// 500 bytes in 1s: rate 500 B/s, 500 remaining, ETA 1s
	snap := tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloading, Received: 500, Total: 1000})

	if snap.Progress.ETA == nil {
		t.Fatal("Expected an ETA once a rate is observed")
	}
	if got := *snap.Progress.ETA; got < 0.9 || got > 1.1 {
		t.Errorf("Expected ETA near 1s, got %f", got)
	}
}

func TestTerminalStatusCountedOnce(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloaded, Received: 100, Total: 100})
	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloaded, Received: 100, Total: 100})

	s := tr.Summary()
	if s.Downloaded != 1 {
		t.Errorf("Expected 1 downloaded after duplicate terminal events, got %d", s.Downloaded)
	}
}

func TestTerminalStatusIsFinal(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusFailed, Message: "boom"})
	// A late conflicting event cannot flip the outcome.
	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloaded})

	s := tr.Summary()
	if s.Failed != 1 || s.Downloaded != 0 {
		t.Errorf("Expected failed=1 downloaded=0, got failed=%d downloaded=%d", s.Failed, s.Downloaded)
	}
}

func TestSummaryAllDownloaded(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.TrackStatus
		want     bool
	}{
		{"all downloaded", []domain.TrackStatus{domain.TrackStatusDownloaded, domain.TrackStatusDownloaded}, true},
		{"downloaded and skipped", []domain.TrackStatus{domain.TrackStatusDownloaded, domain.TrackStatusDownloaded, domain.TrackStatusDownloaded, domain.TrackStatusSkipped}, true},
		{"all skipped", []domain.TrackStatus{domain.TrackStatusSkipped, domain.TrackStatusSkipped}, true},
		{"one failed", []domain.TrackStatus{domain.TrackStatusDownloaded, domain.TrackStatusDownloaded, domain.TrackStatusFailed}, false},
		{"still downloading", []domain.TrackStatus{domain.TrackStatusDownloaded, domain.TrackStatusDownloading}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			for i, st := range tc.statuses {
				tr.Apply(ripper.TrackEvent{TrackID: trackID(i), Status: st, Received: 10, Total: 10})
			}
			if got := tr.Summary().AllDownloaded; got != tc.want {
				t.Errorf("Expected all_downloaded=%v, got %v", tc.want, got)
			}
		})
	}
}

func TestSummaryEmptyJobNotAllDownloaded(t *testing.T) {
	tr, _ := newTestTracker()
	if tr.Summary().AllDownloaded {
		t.Error("Expected all_downloaded=false with zero tracks")
	}
}

func TestSnapshotBeforeFirstEvent(t *testing.T) {
	tr, _ := newTestTracker()
	if tr.Snapshot() != nil {
		t.Error("Expected nil snapshot before any event")
	}
}

func TestSnapshotTracksMap(t *testing.T) {
	tr, _ := newTestTracker()

	tr.Apply(ripper.TrackEvent{TrackID: "t1", Status: domain.TrackStatusDownloaded, Received: 10, Total: 10})
	snap := tr.Apply(ripper.TrackEvent{TrackID: "t2", Title: "Two", Status: domain.TrackStatusDownloading, Total: 20})

	if len(snap.Tracks) != 2 {
		t.Fatalf("Expected 2 tracks in snapshot, got %d", len(snap.Tracks))
	}
	if snap.Tracks["t1"].Status != domain.TrackStatusDownloaded {
		t.Errorf("Expected t1 downloaded, got %s", snap.Tracks["t1"].Status)
	}
	if snap.Track == nil || snap.Track.TrackID != "t2" {
		t.Error("Expected current track to follow the latest event")
	}
}

func trackID(i int) string {
	return string(rune('a' + i))
}

// Package ripper defines the executor adapter: the interface the job
// registry drives to search providers, resolve URLs, and perform the actual
// transfers. The real implementation lives outside this repo; the registry
// only depends on this contract.
package ripper

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/anontester/ripweb/internal/domain"
)

var (
	// ErrResolution means a URL could not be mapped to a downloadable item.
	ErrResolution = errors.New("could not resolve item")

	// ErrTransfer means the provider or network failed mid-download.
	ErrTransfer = errors.New("transfer failed")
)

// TrackEvent is one immutable progress message emitted by the executor while
// ripping an item. Byte-level updates carry Received/Total; status changes
// carry Status and, for terminal statuses, an optional Message.
type TrackEvent struct {
	TrackID     string
	Title       string
	Album       string
	TrackNumber int
	DiscNumber  int
	Status      domain.TrackStatus
	Received    int64
	Total       int64
	Message     string
}

// EmitFunc receives progress events. Implementations must not block; the
// registry funnels events into its single-writer loop.
type EmitFunc func(TrackEvent)

// Request is one download order for the executor.
type Request struct {
	Item domain.Item

	// ForceNoDB bypasses the executor's already-downloaded cache so every
	// track is transferred again.
	ForceNoDB bool
}

// Ripper is the external collaborator performing provider I/O.
//
// Rip transfers all tracks of the requested item, emitting TrackEvents as it
// goes, and returns nil once every track reached a terminal status — even if
// some of them failed; per-track failures are reported through events, a
// non-nil error means the item as a whole could not be processed. Rip must
// honor context cancellation and is responsible for cleaning up partial
// output after a cancelled transfer.
type Ripper interface {
	Search(ctx context.Context, source string, mediaType domain.MediaType, query string, limit int) ([]domain.Item, error)
	Resolve(ctx context.Context, rawURL string) (domain.Item, error)
	Rip(ctx context.Context, req Request, emit EmitFunc) error
}

// NormalizeURL classifies a raw URL for enqueueing. last.fm playlist links
// get their own source so the executor routes them through playlist
// resolution, and the bare hostname is rewritten to the www form the
// provider expects. A structurally invalid URL returns ErrResolution.
func NormalizeURL(rawURL string) (domain.Item, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return domain.Item{}, ErrResolution
	}

	normalized := rawURL
	source := string(domain.MediaTypeURL)
	mediaType := domain.MediaTypeURL
	host := strings.ToLower(parsed.Hostname())
	if host == "last.fm" || host == "www.last.fm" {
		source = string(domain.MediaTypeLastFM)
		mediaType = domain.MediaTypeLastFM
		if host == "last.fm" {
			normalized = strings.Replace(rawURL, "://last.fm", "://www.last.fm", 1)
		}
	}

	return domain.Item{
		ID:        normalized,
		Source:    source,
		MediaType: mediaType,
		Title:     normalized,
		URL:       normalized,
	}, nil
}

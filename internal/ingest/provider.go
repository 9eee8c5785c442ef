package ingest

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/store"
)

// Fetcher produces a fresh offer snapshot. Implemented by Client.
type Fetcher interface {
	FetchSnapshot(now time.Time) (*model.OfferSnapshot, error)
}

// Provider holds the current offer snapshot and refreshes it from a Fetcher,
// persisting every refresh to the rate history. Reads and refreshes may be
// concurrent.
type Provider struct {
	fetcher Fetcher
	history store.RateHistoryStore

	mu       sync.RWMutex
	snapshot *model.OfferSnapshot
}

func NewProvider(fetcher Fetcher, history store.RateHistoryStore) *Provider {
	return &Provider{
		fetcher:  fetcher,
		history:  history,
		snapshot: model.NewOfferSnapshot(""),
	}
}

// Prime loads the most recent stored snapshot, so comparisons work before
// the first refresh completes. An empty history is not an error.
func (p *Provider) Prime() error {
	snapshot, err := p.history.Current()
	if err != nil {
		return fmt.Errorf("load stored offers: %w", err)
	}
	if snapshot.IsEmpty() {
		log.Printf("[INFO] ingest: no stored offers, waiting for first refresh")
		return nil
	}

	p.mu.Lock()
	p.snapshot = snapshot
	p.mu.Unlock()

	log.Printf("[INFO] ingest: primed with stored offers from %s", snapshot.SourceDate)
	return nil
}

// Refresh fetches a fresh snapshot, records it in the rate history and makes
// it the current one. On fetch failure the previous snapshot stays in place.
func (p *Provider) Refresh(now time.Time) error {
	snapshot, err := p.fetcher.FetchSnapshot(now)
	if err != nil {
		return fmt.Errorf("fetch offers: %w", err)
	}
	if snapshot.IsEmpty() {
		return fmt.Errorf("fetched snapshot holds no offers")
	}

	if err := p.history.SaveOffers(snapshot); err != nil {
		// The fresh data is still usable for comparisons.
		log.Printf("[WARN] ingest: saving rate history failed: %v", err)
	}

	p.mu.Lock()
	p.snapshot = snapshot
	p.mu.Unlock()

	log.Printf("[INFO] ingest: refreshed offers, source date %s, %d cells",
		snapshot.SourceDate, len(snapshot.Rows()))
	return nil
}

// Current returns the current snapshot. The returned snapshot is never
// mutated after publication, so it is safe to read without further locking.
func (p *Provider) Current() *model.OfferSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

package book

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fundflow/internal/models"
)

// Feed owns the set of live book streams and answers "what is the newest
// snapshot for this venue+symbol". Tracking is set up before Run; the map is
// not mutated afterwards, so lookups need no lock of their own.
type Feed struct {
	streams map[string]*Stream
}

func NewFeed() *Feed {
	return &Feed{streams: make(map[string]*Stream)}
}

// Track registers one subscription. Must be called before Run.
func (f *Feed) Track(cfg StreamConfig) {
	f.streams[feedKey(cfg.Venue, cfg.Symbol)] = NewStream(cfg)
}

// Latest returns the newest snapshot for a tracked venue+symbol.
func (f *Feed) Latest(venue, symbol string) (*models.OrderBook, bool) {
	stream, ok := f.streams[feedKey(venue, symbol)]
	if !ok {
		return nil, false
	}
	return stream.Latest()
}

// Run consumes every tracked stream until ctx is done. A single stream's
// reconnect loop never takes the others down.
func (f *Feed) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range f.streams {
		g.Go(func() error {
			return stream.Run(ctx)
		})
	}
	return g.Wait()
}

func feedKey(venue, symbol string) string {
	return venue + ":" + symbol
}

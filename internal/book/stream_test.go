package book

import (
	"testing"

	"fundflow/internal/models"
)

func snapshotConfig() StreamConfig {
	return StreamConfig{
		Venue:  "test",
		Symbol: "BTC",
		URL:    "wss://example.invalid/stream",
		Parse: func(message []byte) (*models.OrderBook, bool) {
			return nil, false
		},
	}
}

func TestStreamLatestReplacesSnapshot(t *testing.T) {
	stream := NewStream(snapshotConfig())

	if _, ok := stream.Latest(); ok {
		t.Fatal("expected no snapshot before the first message")
	}

	stream.store(&models.OrderBook{Bids: []models.Level{{Price: 100, Size: 1}}})
	stream.store(&models.OrderBook{Bids: []models.Level{{Price: 101, Size: 1}}})

	snapshot, ok := stream.Latest()
	if !ok {
		t.Fatal("expected a snapshot after storing")
	}
	if snapshot.Bids[0].Price != 101 {
		t.Errorf("expected the newest snapshot only, got bid %f", snapshot.Bids[0].Price)
	}
	if snapshot.Venue != "test" || snapshot.Symbol != "BTC" {
		t.Errorf("snapshot must be stamped with venue and symbol, got %s/%s",
			snapshot.Venue, snapshot.Symbol)
	}
	if snapshot.ReceivedAt.IsZero() {
		t.Error("snapshot must carry a receive time")
	}
}

func TestFeedLatestUntracked(t *testing.T) {
	feed := NewFeed()
	feed.Track(snapshotConfig())

	if _, ok := feed.Latest("test", "ETH"); ok {
		t.Error("untracked symbol must miss")
	}
	if _, ok := feed.Latest("other", "BTC"); ok {
		t.Error("untracked venue must miss")
	}
	if _, ok := feed.Latest("test", "BTC"); ok {
		t.Error("tracked stream without messages must miss")
	}
}

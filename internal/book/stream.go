package book

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"fundflow/internal/models"
)

const (
	handshakeTimeout = 10 * time.Second
	reconnectDelay   = 5 * time.Second
	pingInterval     = 30 * time.Second
)

// SnapshotParser turns one raw websocket message into a book snapshot.
// Messages that are not snapshots (acks, heartbeats) return ok=false.
type SnapshotParser func(message []byte) (*models.OrderBook, bool)

// StreamConfig describes one venue book subscription.
type StreamConfig struct {
	Venue     string
	Symbol    string
	URL       string
	Subscribe any // JSON payload sent after connecting; nil to skip
	Parse     SnapshotParser
}

// Stream consumes a venue's live order-book feed and keeps only the most
// recent snapshot. Consumers always read the latest state, never a replay;
// the snapshot is replaced wholesale under the lock so readers can never
// observe a half-applied update.
type Stream struct {
	cfg    StreamConfig
	mu     sync.RWMutex
	latest *models.OrderBook
}

func NewStream(cfg StreamConfig) *Stream {
	return &Stream{cfg: cfg}
}

// Latest returns the most recently received snapshot, if any.
func (s *Stream) Latest() (*models.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

func (s *Stream) store(book *models.OrderBook) {
	book.Venue = s.cfg.Venue
	book.Symbol = s.cfg.Symbol
	book.ReceivedAt = time.Now().UTC()
	s.mu.Lock()
	s.latest = book
	s.mu.Unlock()
}

// Run connects, subscribes and consumes until ctx is done, reconnecting on
// any read or dial failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().
				Err(err).
				Str("venue", s.cfg.Venue).
				Str("symbol", s.cfg.Symbol).
				Msg("book stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) consumeOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if s.cfg.Subscribe != nil {
		if err := conn.WriteJSON(s.cfg.Subscribe); err != nil {
			return err
		}
	}

	// Close the connection when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if snapshot, ok := s.cfg.Parse(message); ok {
			s.store(snapshot)
		}
	}
}

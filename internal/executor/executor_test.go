package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fundflow/internal/models"
)

type ackResponse struct {
	ack *models.OrderAck
	err error
}

// fakeVenue answers order submissions from a scripted queue and records
// every leg it receives.
type fakeVenue struct {
	name    string
	book    *models.OrderBook
	bookErr error

	mu          sync.Mutex
	responses   []ackResponse
	submissions []models.OrderLeg
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) FundingHistory(ctx context.Context, symbol string, since time.Time) ([]models.FundingSample, error) {
	return nil, nil
}

func (f *fakeVenue) LiveFundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	return nil, nil
}

func (f *fakeVenue) OrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return f.book, nil
}

func (f *fakeVenue) SubmitOrder(ctx context.Context, leg models.OrderLeg) (*models.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, leg)
	if len(f.responses) == 0 {
		return &models.OrderAck{Accepted: true, OrderID: "order-1"}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.ack, next.err
}

func (f *fakeVenue) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func bookAround(mid float64) *models.OrderBook {
	return &models.OrderBook{
		Bids: []models.Level{{Price: mid - 0.15, Size: 1}, {Price: mid - 0.25, Size: 1}},
		Asks: []models.Level{{Price: mid + 0.15, Size: 1}, {Price: mid + 0.25, Size: 1}},
	}
}

func reject(reason string) ackResponse {
	return ackResponse{ack: &models.OrderAck{Accepted: false, Error: reason}}
}

func TestExecuteSuccess(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptSuccess {
		t.Fatalf("expected success, got %s (%s)", attempt.Status, attempt.Detail)
	}
	if len(attempt.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(attempt.Legs))
	}
	if left.submissionCount() != 1 || right.submissionCount() != 1 {
		t.Errorf("expected one submission per venue, got %d/%d",
			left.submissionCount(), right.submissionCount())
	}

	longLeg, shortLeg := attempt.Legs[0], attempt.Legs[1]
	if longLeg.Side != models.SideBuy || longLeg.Venue != "left" {
		t.Errorf("leftLong must buy on left, got %s on %s", longLeg.Side, longLeg.Venue)
	}
	if shortLeg.Side != models.SideSell || shortLeg.Venue != "right" {
		t.Errorf("leftLong must sell on right, got %s on %s", shortLeg.Side, shortLeg.Venue)
	}
	for i, leg := range attempt.Legs {
		if leg.ClientOrderID == "" {
			t.Errorf("leg %d missing client order id", i)
		}
		if leg.ExpirySecs != 10 {
			t.Errorf("leg %d expected 10s expiry, got %d", i, leg.ExpirySecs)
		}
		wantSize := 1000 / leg.Price
		if leg.Size != wantSize {
			t.Errorf("leg %d expected size %f, got %f", i, wantSize, leg.Size)
		}
	}
	if attempt.Legs[0].ClientOrderID == attempt.Legs[1].ClientOrderID {
		t.Error("legs must carry distinct client order ids")
	}
}

func TestExecuteRightLongSwapsVenues(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionRightLong, 1000)

	if attempt.Status != models.AttemptSuccess {
		t.Fatalf("expected success, got %s (%s)", attempt.Status, attempt.Detail)
	}
	if attempt.Legs[0].Venue != "right" || attempt.Legs[0].Side != models.SideBuy {
		t.Errorf("rightLong must buy on right, got %s on %s",
			attempt.Legs[0].Side, attempt.Legs[0].Venue)
	}
}

func TestExecuteNoCrossBlocksSubmission(t *testing.T) {
	// Long venue trades a full point above the short venue: any entry would
	// lock in a loss, so nothing may reach either venue.
	left := &fakeVenue{name: "left", book: bookAround(101)}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptFailed {
		t.Fatalf("expected failed, got %s", attempt.Status)
	}
	if !strings.Contains(attempt.Detail, "cross at a loss") {
		t.Errorf("unexpected detail: %s", attempt.Detail)
	}
	if left.submissionCount() != 0 || right.submissionCount() != 0 {
		t.Errorf("no leg may be submitted on a crossed entry, got %d/%d",
			left.submissionCount(), right.submissionCount())
	}
}

func TestExecutePartialThenRetrySucceeds(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{
		name:      "right",
		book:      bookAround(100),
		responses: []ackResponse{reject("post-only would cross"), {ack: &models.OrderAck{Accepted: true, OrderID: "order-2"}}},
	}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptSuccess {
		t.Fatalf("expected success after retry, got %s (%s)", attempt.Status, attempt.Detail)
	}
	if right.submissionCount() != 2 {
		t.Errorf("expected exactly one retry on right, got %d submissions", right.submissionCount())
	}
	if left.submissionCount() != 1 {
		t.Errorf("placed leg must not be resubmitted, got %d submissions", left.submissionCount())
	}

	right.mu.Lock()
	first, second := right.submissions[0], right.submissions[1]
	right.mu.Unlock()
	if first.ClientOrderID == second.ClientOrderID {
		t.Error("retry must carry a fresh client order id")
	}
	if attempt.UnhedgedVenue != "" {
		t.Errorf("successful retry leaves nothing unhedged, got %s", attempt.UnhedgedVenue)
	}
}

func TestExecuteRetryExhaustedReportsUnhedged(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{
		name:      "right",
		book:      bookAround(100),
		responses: []ackResponse{reject("rejected"), reject("rejected again")},
	}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptFailed {
		t.Fatalf("expected failed, got %s", attempt.Status)
	}
	if attempt.UnhedgedVenue != "left" {
		t.Errorf("expected left flagged unhedged, got %q", attempt.UnhedgedVenue)
	}
	if right.submissionCount() != 2 {
		t.Errorf("expected exactly one retry, got %d submissions", right.submissionCount())
	}
	if len(attempt.Errors) < 2 {
		t.Errorf("expected both rejection reasons recorded, got %v", attempt.Errors)
	}
	if !strings.Contains(attempt.Detail, "operator action required") {
		t.Errorf("unexpected detail: %s", attempt.Detail)
	}
}

func TestExecuteBothLegsRejected(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100), responses: []ackResponse{reject("left down")}}
	right := &fakeVenue{name: "right", book: bookAround(100), responses: []ackResponse{reject("right down")}}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptFailed {
		t.Fatalf("expected failed, got %s", attempt.Status)
	}
	// A symmetric failure needs no compensation, so no retries either.
	if left.submissionCount() != 1 || right.submissionCount() != 1 {
		t.Errorf("expected one submission per venue, got %d/%d",
			left.submissionCount(), right.submissionCount())
	}
	if attempt.UnhedgedVenue != "" {
		t.Errorf("symmetric failure leaves nothing unhedged, got %s", attempt.UnhedgedVenue)
	}
	if !strings.Contains(attempt.Detail, "left down") || !strings.Contains(attempt.Detail, "right down") {
		t.Errorf("detail must name both reasons, got %s", attempt.Detail)
	}
}

func TestExecuteBookUnavailable(t *testing.T) {
	left := &fakeVenue{name: "left", bookErr: errors.New("venue offline")}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)

	if attempt.Status != models.AttemptFailed {
		t.Fatalf("expected failed, got %s", attempt.Status)
	}
	if left.submissionCount() != 0 || right.submissionCount() != 0 {
		t.Error("no leg may be submitted without both books")
	}
}

func TestExecuteConcurrentAttempts(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	var wg sync.WaitGroup
	attempts := make([]*models.ExecutionAttempt, 4)
	for i := range attempts {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			attempts[slot] = coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000)
		}(i)
	}
	wg.Wait()

	for i, attempt := range attempts {
		if attempt.Status != models.AttemptSuccess {
			t.Errorf("attempt %d: expected success, got %s (%s)", i, attempt.Status, attempt.Detail)
		}
	}
	if state := coordinator.State(); state != StateIdle {
		t.Errorf("expected idle after all attempts, got %s", state)
	}
}

func TestExecuteFailureReturnsToIdle(t *testing.T) {
	left := &fakeVenue{name: "left", bookErr: errors.New("venue offline")}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	if attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 1000); attempt.Status != models.AttemptFailed {
		t.Fatalf("expected failed, got %s", attempt.Status)
	}
	if state := coordinator.State(); state != StateIdle {
		t.Errorf("pricing failure must return to idle, got %s", state)
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	left := &fakeVenue{name: "left", book: bookAround(100)}
	right := &fakeVenue{name: "right", book: bookAround(100)}
	coordinator := NewCoordinator(left, right, nil, 10)

	if attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionUnknown, 1000); attempt.Status != models.AttemptFailed {
		t.Errorf("unknown direction must fail, got %s", attempt.Status)
	}
	if attempt := coordinator.Execute(context.Background(), "BTC", models.DirectionLeftLong, 0); attempt.Status != models.AttemptFailed {
		t.Errorf("zero notional must fail, got %s", attempt.Status)
	}
}

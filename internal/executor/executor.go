// Package executor coordinates the two-leg order placement of one arbitrage
// attempt. True cross-venue atomicity does not exist, so the coordinator is
// best-effort: price both legs off live books, refuse to enter at a loss,
// submit both legs concurrently, and compensate an asymmetric failure with
// exactly one retry of the failed leg.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fundflow/internal/book"
	"fundflow/internal/models"
	"fundflow/internal/venue"
)

// State is the coordinator's position in the attempt lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StatePricing    State = "pricing"
	StateSubmitting State = "submitting"
	StateRetrying   State = "retrying"
)

// DefaultOrderExpirySecs bounds each leg's validity; venues enforce the
// expiry on their side, the coordinator never polls for it.
const DefaultOrderExpirySecs = 10

// Books hands out the most recently received snapshot for a venue+symbol.
type Books interface {
	Latest(venueName, symbol string) (*models.OrderBook, bool)
}

// Coordinator prices, submits and (once) retries a hedged two-leg order pair.
// Safe for concurrent attempts; State reports the phase most recently entered
// by any of them.
type Coordinator struct {
	left       venue.Venue
	right      venue.Venue
	books      Books // optional; REST book fetch is the fallback
	expirySecs int

	mu    sync.Mutex
	state State
}

func NewCoordinator(left, right venue.Venue, books Books, expirySecs int) *Coordinator {
	if expirySecs <= 0 {
		expirySecs = DefaultOrderExpirySecs
	}
	return &Coordinator{
		left:       left,
		right:      right,
		books:      books,
		expirySecs: expirySecs,
		state:      StateIdle,
	}
}

// State reports where the in-flight attempt currently sits.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// legResult joins one leg's outcome back after the concurrent fan-out.
type legResult struct {
	index int
	ack   *models.OrderAck
	err   error
}

func (r legResult) accepted() bool {
	return r.err == nil && r.ack != nil && r.ack.Accepted
}

func (r legResult) reason() string {
	if r.err != nil {
		return r.err.Error()
	}
	if r.ack != nil && r.ack.Error != "" {
		return r.ack.Error
	}
	return "rejected without reason"
}

// Execute runs one attempt to a terminal state. The returned attempt always
// carries a human-readable Detail and, on failure, per-leg reasons.
func (c *Coordinator) Execute(ctx context.Context, symbol string, direction models.Direction, notionalUSD float64) *models.ExecutionAttempt {
	attempt := &models.ExecutionAttempt{
		Symbol:      symbol,
		Direction:   direction,
		NotionalUSD: notionalUSD,
		Status:      models.AttemptPending,
	}

	longVenue, shortVenue, err := c.venuesFor(direction)
	if err != nil {
		return c.fail(attempt, err.Error())
	}
	if notionalUSD <= 0 {
		return c.fail(attempt, "notional must be positive")
	}

	// Pricing. Both legs need a live book; a missing book on either side
	// fails the attempt before anything is submitted.
	c.setState(StatePricing)
	longPrice, err := c.makerPrice(ctx, longVenue, symbol, models.SideBuy)
	if err != nil {
		return c.fail(attempt, fmt.Sprintf("insufficient book depth on %s: %v", longVenue.Name(), err))
	}
	shortPrice, err := c.makerPrice(ctx, shortVenue, symbol, models.SideSell)
	if err != nil {
		return c.fail(attempt, fmt.Sprintf("insufficient book depth on %s: %v", shortVenue.Name(), err))
	}

	// Mandatory no-cross check: paying more on the long leg than the short
	// leg earns means entering at a loss. Runs again before any retry.
	if longPrice > shortPrice {
		return c.fail(attempt, "entering now would cross at a loss")
	}

	longLeg := c.buildLeg(longVenue, symbol, models.SideBuy, longPrice, notionalUSD)
	shortLeg := c.buildLeg(shortVenue, symbol, models.SideSell, shortPrice, notionalUSD)
	attempt.Legs = []models.OrderLeg{longLeg, shortLeg}

	// Submitting: both legs fan out concurrently as independent
	// result-or-error values; neither blocks the other.
	c.setState(StateSubmitting)
	results := c.submitPair(ctx, longVenue, shortVenue, attempt.Legs)

	longResult, shortResult := results[0], results[1]
	switch {
	case longResult.accepted() && shortResult.accepted():
		attempt.Status = models.AttemptSuccess
		attempt.Detail = "both legs placed"
		c.setState(StateIdle)
		return attempt

	case !longResult.accepted() && !shortResult.accepted():
		return c.fail(attempt,
			fmt.Sprintf("both legs rejected: %s: %s; %s: %s",
				longVenue.Name(), longResult.reason(),
				shortVenue.Name(), shortResult.reason()))
	}

	// Exactly one leg went through: retry the failed leg once against the
	// current book, no-cross re-checked against the placed leg's price.
	attempt.Status = models.AttemptPartial
	failed := longResult
	failedVenue, placedVenue := longVenue, shortVenue
	failedSide := models.SideBuy
	placedPrice := shortPrice
	if longResult.accepted() {
		failed = shortResult
		failedVenue, placedVenue = shortVenue, longVenue
		failedSide = models.SideSell
		placedPrice = longPrice
	}
	attempt.Errors = append(attempt.Errors,
		fmt.Sprintf("%s rejected: %s", failedVenue.Name(), failed.reason()))

	c.setState(StateRetrying)
	log.Warn().
		Str("symbol", symbol).
		Str("venue", failedVenue.Name()).
		Str("reason", failed.reason()).
		Msg("one leg failed, retrying once")

	retryLeg, retryErr := c.retryLeg(ctx, failedVenue, symbol, failedSide, placedPrice, notionalUSD)
	if retryErr != nil {
		attempt.Errors = append(attempt.Errors, retryErr.Error())
		attempt.Status = models.AttemptFailed
		attempt.UnhedgedVenue = placedVenue.Name()
		attempt.Detail = fmt.Sprintf(
			"partial execution: %s leg is placed and unhedged; operator action required", placedVenue.Name())
		c.setState(StateIdle)
		return attempt
	}

	attempt.Legs[failed.index] = *retryLeg
	attempt.Status = models.AttemptSuccess
	attempt.Detail = "both legs placed (one after retry)"
	c.setState(StateIdle)
	return attempt
}

// retryLeg re-prices and resubmits a single leg. The no-cross invariant is
// re-checked against the already-placed opposite leg before resubmission.
func (c *Coordinator) retryLeg(ctx context.Context, v venue.Venue, symbol string, side models.Side, placedPrice, notionalUSD float64) (*models.OrderLeg, error) {
	price, err := c.makerPrice(ctx, v, symbol, side)
	if err != nil {
		return nil, fmt.Errorf("insufficient book depth on %s: %v", v.Name(), err)
	}

	crossed := (side == models.SideBuy && price > placedPrice) ||
		(side == models.SideSell && price < placedPrice)
	if crossed {
		return nil, fmt.Errorf("retry abandoned: re-pricing %s would cross at a loss", v.Name())
	}

	leg := c.buildLeg(v, symbol, side, price, notionalUSD)
	ack, err := v.SubmitOrder(ctx, leg)
	if err != nil {
		return nil, fmt.Errorf("%s retry failed: %v", v.Name(), err)
	}
	if !ack.Accepted {
		return nil, fmt.Errorf("%s retry rejected: %s", v.Name(), ack.Error)
	}
	return &leg, nil
}

func (c *Coordinator) submitPair(ctx context.Context, longVenue, shortVenue venue.Venue, legs []models.OrderLeg) [2]legResult {
	venues := [2]venue.Venue{longVenue, shortVenue}
	resultCh := make(chan legResult, 2)
	for i := range legs {
		go func(index int) {
			ack, err := venues[index].SubmitOrder(ctx, legs[index])
			resultCh <- legResult{index: index, ack: ack, err: err}
		}(i)
	}

	var results [2]legResult
	for range legs {
		result := <-resultCh
		results[result.index] = result
	}
	return results
}

func (c *Coordinator) buildLeg(v venue.Venue, symbol string, side models.Side, price, notionalUSD float64) models.OrderLeg {
	return models.OrderLeg{
		Venue:         v.Name(),
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Size:          notionalUSD / price,
		ClientOrderID: uuid.NewString(),
		ExpirySecs:    c.expirySecs,
	}
}

// makerPrice prefers the feed's latest snapshot and falls back to a REST
// book fetch; absence of both is a book-unavailable failure.
func (c *Coordinator) makerPrice(ctx context.Context, v venue.Venue, symbol string, side models.Side) (float64, error) {
	var snapshot *models.OrderBook
	if c.books != nil {
		if latest, ok := c.books.Latest(v.Name(), symbol); ok {
			snapshot = latest
		}
	}
	if snapshot == nil {
		fetched, err := v.OrderBook(ctx, symbol)
		if err != nil {
			return 0, err
		}
		snapshot = fetched
	}
	return book.MakerPrice(snapshot, side)
}

func (c *Coordinator) venuesFor(direction models.Direction) (longVenue, shortVenue venue.Venue, err error) {
	switch direction {
	case models.DirectionLeftLong:
		return c.left, c.right, nil
	case models.DirectionRightLong:
		return c.right, c.left, nil
	default:
		return nil, nil, fmt.Errorf("direction must be %s or %s", models.DirectionLeftLong, models.DirectionRightLong)
	}
}

// fail terminates the attempt and returns the coordinator to idle, so a
// failure in any phase never leaves the state stuck there.
func (c *Coordinator) fail(attempt *models.ExecutionAttempt, reason string) *models.ExecutionAttempt {
	c.setState(StateIdle)
	attempt.Status = models.AttemptFailed
	attempt.Detail = reason
	if !contains(attempt.Errors, reason) {
		attempt.Errors = append(attempt.Errors, reason)
	}
	return attempt
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}

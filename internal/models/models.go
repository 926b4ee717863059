package models

import "time"

// MsPerHour is the unit every funding timestamp is floored to.
const MsPerHour = int64(60 * 60 * 1000)

// FundingSample is one settlement observation from a venue, normalized to an
// hour-aligned millisecond timestamp and an hourly-equivalent decimal rate.
type FundingSample struct {
	Venue         string  `json:"venue"`
	BaseSymbol    string  `json:"base_symbol"`
	TimestampHour int64   `json:"timestamp_hour"` // ms since epoch, floored to the hour
	RateDecimal   float64 `json:"rate_decimal"`   // decimal per hour
	PeriodHours   float64 `json:"period_hours"`   // the venue's native settlement period
}

// ReconciledPoint is one instant on the merged left/right timeline. Rates are
// nil until the corresponding series has produced a sample at or before
// TimeHour; Spread is RightRate - LeftRate when both are present.
type ReconciledPoint struct {
	TimeHour  int64    `json:"time_hour"`
	LeftRate  *float64 `json:"left_rate"`
	RightRate *float64 `json:"right_rate"`
	Spread    *float64 `json:"spread"`
}

// Direction says which venue the long leg sits on.
type Direction string

const (
	DirectionLeftLong  Direction = "leftLong"
	DirectionRightLong Direction = "rightLong"
	DirectionUnknown   Direction = "unknown"
)

// ArbitrageWindowResult is the realized yield over a trailing lookback.
type ArbitrageWindowResult struct {
	Symbol               string    `json:"symbol"`
	LeftSymbol           string    `json:"left_symbol"`
	RightSymbol          string    `json:"right_symbol"`
	TotalDecimal         float64   `json:"total_decimal"`
	AverageHourlyDecimal float64   `json:"average_hourly_decimal"`
	AnnualizedDecimal    float64   `json:"annualized_decimal"`
	SampleCount          int       `json:"sample_count"`
	Direction            Direction `json:"direction"`
}

// PredictionResult extends the window result with the forecast fields.
type PredictionResult struct {
	ArbitrageWindowResult

	PredictedLeft24h        *float64 `json:"predicted_left_24h"`
	PredictedRight24h       *float64 `json:"predicted_right_24h"`
	PredictedSpread24h      float64  `json:"predicted_spread_24h"`
	SpreadVolatility24hPct  float64  `json:"spread_volatility_24h_pct"`
	LeftBidAskSpreadBps     float64  `json:"left_bid_ask_spread_bps"`
	RightBidAskSpreadBps    float64  `json:"right_bid_ask_spread_bps"`
	CombinedBidAskSpreadBps float64  `json:"combined_bid_ask_spread_bps"`
	RecommendationScore     float64  `json:"recommendation_score"`
	EntryTimingAdvice       string   `json:"entry_timing_advice"`
}

// SymbolFailure records why one symbol dropped out of a batch computation.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Level is one price level of an order book ladder.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a point-in-time snapshot of a venue's book for one symbol.
type OrderBook struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	Bids       []Level   `json:"bids"` // best first
	Asks       []Level   `json:"asks"` // best first
	ReceivedAt time.Time `json:"received_at"`
}

// Side is an order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderLeg is one half of an arbitrage attempt. Owned by the execution
// coordinator for the lifetime of the attempt.
type OrderLeg struct {
	Venue         string  `json:"venue"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	ClientOrderID string  `json:"client_order_id"`
	ExpirySecs    int     `json:"expiry_secs"`
}

// OrderAck is a venue's answer to a submission.
type OrderAck struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"order_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AttemptStatus is the state of an execution attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptPartial AttemptStatus = "partial"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// ExecutionAttempt is the full record of one user-triggered execution.
type ExecutionAttempt struct {
	Symbol      string        `json:"symbol"`
	Direction   Direction     `json:"direction"`
	NotionalUSD float64       `json:"notional_usd"`
	Legs        []OrderLeg    `json:"legs"`
	Status      AttemptStatus `json:"status"`
	Detail      string        `json:"detail"`
	Errors      []string      `json:"errors,omitempty"`
	// UnhedgedVenue names the venue left holding a lone leg after the retry
	// is exhausted. The coordinator never unwinds it on its own.
	UnhedgedVenue string `json:"unhedged_venue,omitempty"`
}

// Float is a convenience for optional rate fields.
func Float(v float64) *float64 { return &v }

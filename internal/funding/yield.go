package funding

import (
	"errors"
	"math"

	"fundflow/internal/models"
)

// HoursPerYear is applied uniformly regardless of either venue's settlement
// period: every reconciled sample counts as one hour of exposure. Known
// approximation when the venues settle on different periods.
const HoursPerYear = 24 * 365

// DefaultLookbackHours is the trailing window for realized yield.
const DefaultLookbackHours = 24

// ErrInsufficientSamples means reconciled data exists but carries no usable
// spread within the window. Distinct from ErrNoData: a true zero spread and
// "no data" must not be conflated.
var ErrInsufficientSamples = errors.New("insufficient spread samples in window")

// WindowYield reduces a reconciled series to realized total / average /
// annualized arbitrage yield over the trailing lookback, measured backward
// from the latest point. The strategy captures spread magnitude regardless of
// which leg is long, so the total sums absolute spreads while the direction
// comes from the signed sum.
func WindowYield(points []models.ReconciledPoint, lookbackHours int) (*models.ArbitrageWindowResult, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}
	if lookbackHours <= 0 {
		lookbackHours = DefaultLookbackHours
	}

	latest := points[len(points)-1].TimeHour
	windowStart := latest - int64(lookbackHours)*models.MsPerHour

	var (
		total          float64
		directionalSum float64
		sampleCount    int
	)
	for _, point := range points {
		if point.TimeHour < windowStart {
			continue
		}
		if point.Spread == nil || !isFinite(*point.Spread) {
			continue
		}
		total += math.Abs(*point.Spread)
		directionalSum += *point.Spread
		sampleCount++
	}

	if sampleCount == 0 || total == 0 {
		return nil, ErrInsufficientSamples
	}

	average := total / float64(sampleCount)
	return &models.ArbitrageWindowResult{
		TotalDecimal:         total,
		AverageHourlyDecimal: average,
		AnnualizedDecimal:    average * HoursPerYear,
		SampleCount:          sampleCount,
		Direction:            directionFromSum(directionalSum),
	}, nil
}

func directionFromSum(sum float64) models.Direction {
	switch {
	case sum > 0:
		return models.DirectionLeftLong
	case sum < 0:
		return models.DirectionRightLong
	default:
		return models.DirectionUnknown
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package funding

import (
	"math"

	"fundflow/internal/models"
)

const (
	// ForecastLookbackHours is the history window the model consumes.
	ForecastLookbackHours = 72
	// ForecastHorizonHours scales the steady-state hourly level to a 24h figure.
	ForecastHorizonHours = 24
	// halfLifeHours drives the EWMA decay: 0.5^(delta/halfLife) per gap.
	halfLifeHours = 16.0
	// volatilityWindowHours bounds the stddev sample.
	volatilityWindowHours = 24
	// MinForecastSamples excludes thin series from recommendations entirely.
	MinForecastSamples = 8

	// Sigmoid acceptance for bid-ask entry cost, in basis points.
	spreadIntolerableBps = 15.0
	spreadSteepnessBps   = 1.5

	yieldWeight      = 0.70
	volatilityWeight = 0.30
)

// ForecastStats is the per-symbol output of the EWMA model before batch
// scoring. The hourly levels are steady-state forecasts: the latest EWMA
// value projected forward unchanged.
type ForecastStats struct {
	PredictedLeft24h       *float64
	PredictedRight24h      *float64
	PredictedSpread24h     float64
	AvgSpreadHourly        float64 // signed EWMA level, decimal per hour
	SpreadVolatility24hPct float64
	SampleCount            int
	Direction              models.Direction
}

// ewma tracks an exponentially-weighted average over an irregularly sampled
// series: gaps between samples widen the decay instead of being resampled.
type ewma struct {
	value    float64
	lastTime int64
	count    int
}

func (e *ewma) observe(timeMs int64, v float64) {
	if e.count == 0 {
		e.value = v
	} else {
		hoursDelta := math.Max(float64(timeMs-e.lastTime)/float64(models.MsPerHour), 0)
		decay := math.Pow(0.5, hoursDelta/halfLifeHours)
		e.value = v*(1-decay) + e.value*decay
	}
	e.lastTime = timeMs
	e.count++
}

// Forecast applies the half-life EWMA independently to the left, right and
// spread series of a reconciled window and derives 24h forecasts plus spread
// volatility. Series thinner than MinForecastSamples are rejected so they are
// excluded from recommendations rather than scored as zero.
func Forecast(points []models.ReconciledPoint) (*ForecastStats, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}

	latest := points[len(points)-1].TimeHour
	lookbackStart := latest - int64(ForecastLookbackHours)*models.MsPerHour
	volatilityStart := latest - int64(volatilityWindowHours)*models.MsPerHour

	var left, right, spread ewma
	var volatilitySamples []float64

	for _, point := range points {
		if point.TimeHour < lookbackStart {
			continue
		}
		if point.LeftRate != nil && isFinite(*point.LeftRate) {
			left.observe(point.TimeHour, *point.LeftRate)
		}
		if point.RightRate != nil && isFinite(*point.RightRate) {
			right.observe(point.TimeHour, *point.RightRate)
		}
		if point.Spread != nil && isFinite(*point.Spread) {
			spread.observe(point.TimeHour, *point.Spread)
			if point.TimeHour >= volatilityStart {
				volatilitySamples = append(volatilitySamples, *point.Spread)
			}
		}
	}

	if spread.count < MinForecastSamples {
		return nil, ErrInsufficientSamples
	}

	stats := &ForecastStats{
		PredictedSpread24h:     spread.value * ForecastHorizonHours,
		AvgSpreadHourly:        spread.value,
		SpreadVolatility24hPct: stddev(volatilitySamples) * math.Sqrt(ForecastHorizonHours) * 100,
		SampleCount:            spread.count,
		Direction:              directionFromSum(spread.value),
	}
	if left.count > 0 {
		stats.PredictedLeft24h = models.Float(left.value * ForecastHorizonHours)
	}
	if right.count > 0 {
		stats.PredictedRight24h = models.Float(right.value * ForecastHorizonHours)
	}
	return stats, nil
}

// stddev is the population standard deviation; under two samples it is zero.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(math.Max(variance, 0))
}

// MinMaxNormalize maps value into [0,1] against its batch population. A
// degenerate population (all equal) normalizes to the midpoint.
func MinMaxNormalize(value float64, population []float64) float64 {
	if len(population) == 0 {
		return 0
	}
	minV, maxV := population[0], population[0]
	for _, v := range population[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	if span <= 1e-12 {
		return 0.5
	}
	return clamp01((value - minV) / span)
}

// SpreadAcceptance maps a bid-ask spread to [0,1]: near-full score at or
// below the intolerable threshold, then a steep sigmoid drop past it.
func SpreadAcceptance(spreadBps float64) float64 {
	if !isFinite(spreadBps) {
		return 0
	}
	x := (spreadBps - spreadIntolerableBps) / spreadSteepnessBps
	return clamp01(1.0 / (1.0 + math.Exp(x)))
}

// Score combines normalized annualized yield, inverse spread volatility and
// per-leg entry cost into the 0-100 recommendation score. Each input
// contributes monotonically: higher yield, lower volatility and tighter books
// always score higher.
func Score(yieldNorm, volatilityNorm, leftSpreadBps, rightSpreadBps float64) float64 {
	core := yieldWeight*yieldNorm + volatilityWeight*(1.0-volatilityNorm)
	acceptance := SpreadAcceptance(leftSpreadBps) * SpreadAcceptance(rightSpreadBps)
	return core * acceptance * 100.0
}

// Advice turns the scored stats into the operator-facing timing hint.
func Advice(score, combinedSpreadBps, volatilityPct float64) string {
	switch {
	case combinedSpreadBps > 2*spreadIntolerableBps:
		return "books too wide to enter as maker; wait for tighter quotes"
	case score >= 60:
		return "favorable to enter now"
	case volatilityPct > 1.0:
		return "spread unstable; wait for it to settle"
	default:
		return "marginal edge; enter only at maker prices"
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

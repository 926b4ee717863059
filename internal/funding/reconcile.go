package funding

import (
	"errors"
	"math"
	"sort"

	"fundflow/internal/models"
)

// ErrNoData is returned when neither series has a single sample. Callers must
// treat this as a per-symbol failure, not an empty success.
var ErrNoData = errors.New("no funding history available")

// Reconcile merges two per-venue sample sequences into a single hour-indexed
// series. The left series is the timeline backbone; the right series is
// forward-filled onto it with an as-of (backward) join: for each left sample
// the most recent right sample at or before that instant is carried forward.
// Funding rates hold constant between settlements, so the carried value is the
// right venue's true rate at that instant.
func Reconcile(left, right []models.FundingSample) ([]models.ReconciledPoint, error) {
	sortedLeft := sortByTime(left)
	sortedRight := sortByTime(right)

	if len(sortedLeft) == 0 && len(sortedRight) == 0 {
		return nil, ErrNoData
	}

	// No backbone: key the series on the right side instead, left stays nil.
	if len(sortedLeft) == 0 {
		points := make([]models.ReconciledPoint, 0, len(sortedRight))
		for _, sample := range sortedRight {
			points = append(points, models.ReconciledPoint{
				TimeHour:  sample.TimestampHour,
				RightRate: models.Float(sample.RateDecimal),
			})
		}
		return points, nil
	}

	points := make([]models.ReconciledPoint, 0, len(sortedLeft))
	rightIndex := 0
	var carried *float64

	for _, sample := range sortedLeft {
		for rightIndex < len(sortedRight) && sortedRight[rightIndex].TimestampHour <= sample.TimestampHour {
			next := sortedRight[rightIndex].RateDecimal
			if !math.IsNaN(next) && !math.IsInf(next, 0) {
				carried = models.Float(next)
			}
			rightIndex++
		}

		point := models.ReconciledPoint{
			TimeHour: sample.TimestampHour,
			LeftRate: models.Float(sample.RateDecimal),
		}
		if carried != nil {
			point.RightRate = models.Float(*carried)
			point.Spread = models.Float(*carried - sample.RateDecimal)
		}
		points = append(points, point)
	}

	return points, nil
}

// sortByTime returns an ascending copy; the input is never mutated.
func sortByTime(samples []models.FundingSample) []models.FundingSample {
	out := make([]models.FundingSample, len(samples))
	copy(out, samples)
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampHour < out[j].TimestampHour
	})
	return out
}

// Package detector holds the independent market detectors. Each detector is
// a value with its own caches and a pair of operations {Update, Detect}:
// Update refreshes internal state (possibly over exchange REST), Detect is a
// pure read over the store and the caches. The base detectors never read
// each other; only the composites (Sentiment, TopPick) read the base
// detectors, and strictly one-way. The aggregating layers treat all alerts
// as tagged variants.
package detector

import (
	"math"
	"sort"

	"PulseScan/internal/domain/models"
)

// directionOf maps a signed move onto a trade direction.
func directionOf(v float64) models.Direction {
	switch {
	case v > 0:
		return models.DirectionLong
	case v < 0:
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

// sortByMagnitude orders alerts by descending |primary metric| with the
// symbol as tiebreak, giving every Detect a total order.
func sortByMagnitude[T any](alerts []T, metric func(T) float64, symbol func(T) string) {
	sort.Slice(alerts, func(i, j int) bool {
		mi, mj := math.Abs(metric(alerts[i])), math.Abs(metric(alerts[j]))
		if mi != mj {
			return mi > mj
		}
		return symbol(alerts[i]) < symbol(alerts[j])
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pearson computes the correlation of two equal-length series.
// Returns 0 when either side has no variance.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

package detector

import (
	"math"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// Range flags wide 24h trading ranges and locates the price within them.
type Range struct {
	store    *datastore.Store
	clock    drepo.Clock
	minRange float64 // percent of open
}

func NewRange(store *datastore.Store, clock drepo.Clock, minRange float64) *Range {
	return &Range{store: store, clock: clock, minRange: minRange}
}

func (d *Range) Name() string { return "range" }

func (d *Range) Detect() []models.RangeAlert {
	now := d.clock.Now()
	var out []models.RangeAlert
	for _, st := range d.store.All() {
		t := st.Current
		if t.OpenPrice <= 0 || t.HighPrice <= t.LowPrice {
			continue
		}
		rangePct := (t.HighPrice - t.LowPrice) / t.OpenPrice * 100
		if rangePct < d.minRange {
			continue
		}
		out = append(out, models.RangeAlert{
			Symbol:    t.Symbol,
			RangePct:  rangePct,
			Position:  positionInRange(t),
			LastPrice: t.LastPrice,
			Direction: directionOf(t.PriceChangePct),
			Timestamp: now,
		})
	}
	sortByMagnitude(out, func(a models.RangeAlert) float64 { return a.RangePct }, func(a models.RangeAlert) string { return a.Symbol })
	return out
}

func positionInRange(t models.Ticker) models.RangePosition {
	span := t.HighPrice - t.LowPrice
	if span <= 0 {
		return models.RangeMiddle
	}
	// breaking: within 0.1% of either extreme
	if math.Abs(t.LastPrice-t.HighPrice)/t.HighPrice <= 0.001 ||
		math.Abs(t.LastPrice-t.LowPrice)/t.LowPrice <= 0.001 {
		return models.RangeBreaking
	}
	pos := (t.LastPrice - t.LowPrice) / span
	switch {
	case pos >= 0.8:
		return models.RangeNearHigh
	case pos <= 0.2:
		return models.RangeNearLow
	default:
		return models.RangeMiddle
	}
}

// PricePosition returns the normalized 0-1 position of the last price in
// the 24h range, a feature-schema input.
func PricePosition(t models.Ticker) float64 {
	span := t.HighPrice - t.LowPrice
	if span <= 0 {
		return 0.5
	}
	return clamp((t.LastPrice-t.LowPrice)/span, 0, 1)
}

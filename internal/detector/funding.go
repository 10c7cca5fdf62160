package detector

import (
	"context"
	"fmt"
	"math"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// Funding polls funding rates over REST and classifies extremes and
// squeeze setups against the 24h move.
type Funding struct {
	store *datastore.Store
	rest  drepo.ExchangeREST
	clock drepo.Clock

	mu    sync.Mutex
	rates map[string]models.FundingRate
}

func NewFunding(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock) *Funding {
	return &Funding{store: store, rest: rest, clock: clock, rates: make(map[string]models.FundingRate)}
}

func (d *Funding) Name() string { return "funding" }

// Update refreshes the funding-rate cache. On failure the previous cache
// stays authoritative.
func (d *Funding) Update(ctx context.Context) error {
	rates, err := d.rest.GetFundingRates(ctx)
	if err != nil {
		return fmt.Errorf("funding rates: %w", err)
	}
	d.mu.Lock()
	for _, r := range rates {
		d.rates[r.Symbol] = r
	}
	d.mu.Unlock()
	return nil
}

func (d *Funding) Detect() []models.FundingAlert {
	now := d.clock.Now()
	var out []models.FundingAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, fr := range d.rates {
		t, ok := d.store.Ticker(sym)
		if !ok {
			continue
		}
		sig := ClassifyFunding(fr.Rate, t.PriceChangePct)
		if sig == models.FundingNeutral {
			continue
		}
		out = append(out, models.FundingAlert{
			Symbol:    sym,
			Rate:      fr.Rate,
			Signal:    sig,
			Strength:  FundingStrength(fr.Rate),
			Change24h: t.PriceChangePct,
			Direction: FundingTradeDirection(sig),
			Timestamp: now,
		})
	}
	sortByMagnitude(out, func(a models.FundingAlert) float64 { return a.Rate }, func(a models.FundingAlert) string { return a.Symbol })
	return out
}

// RateFor exposes the cached funding rate for one symbol.
func (d *Funding) RateFor(symbol string) (models.FundingRate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fr, ok := d.rates[symbol]
	return fr, ok
}

func ClassifyFunding(rate, change24h float64) models.FundingSignal {
	switch {
	case rate > 0.1:
		return models.FundingExtremePositive
	case rate < -0.1:
		return models.FundingExtremeNegative
	case rate < -0.05 && change24h < -5:
		return models.FundingLongSqueeze
	case rate > 0.05 && change24h > 5:
		return models.FundingShortSqueeze
	default:
		return models.FundingNeutral
	}
}

// FundingStrength bands rate magnitude into 0-100.
func FundingStrength(rate float64) float64 {
	m := math.Abs(rate)
	switch {
	case m > 0.3:
		return 100
	case m > 0.1:
		return 75
	case m > 0.05:
		return 50
	default:
		return clamp(m/0.05*50, 0, 50)
	}
}

// FundingTradeDirection: crowded longs pay → contrarian short, and vice versa.
// Squeezes resolve in the squeeze direction.
func FundingTradeDirection(sig models.FundingSignal) models.Direction {
	switch sig {
	case models.FundingExtremePositive, models.FundingLongSqueeze:
		return models.DirectionShort
	case models.FundingExtremeNegative, models.FundingShortSqueeze:
		return models.DirectionLong
	default:
		return models.DirectionNeutral
	}
}

package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	oiUniverse  = 100 // highest-liquidity symbols polled
	oiThreshold = 2.0 // percent change that warrants an alert
)

// OpenInterest polls OI for the most liquid symbols and reads the
// (OI delta, price delta) pair as a participation signal.
type OpenInterest struct {
	store *datastore.Store
	rest  drepo.ExchangeREST
	clock drepo.Clock

	mu      sync.Mutex
	history map[string][]models.OpenInterest
}

func NewOpenInterest(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock) *OpenInterest {
	return &OpenInterest{store: store, rest: rest, clock: clock, history: make(map[string][]models.OpenInterest)}
}

func (d *OpenInterest) Name() string { return "open_interest" }

// Update polls open interest for the top symbols by quote volume. The REST
// adapter enforces the batching discipline; a failed symbol keeps its
// previous points.
func (d *OpenInterest) Update(ctx context.Context) error {
	symbols := d.topSymbols()
	var firstErr error
	for _, sym := range symbols {
		oi, err := d.rest.GetOpenInterest(ctx, sym)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("open interest %s: %w", sym, err)
			}
			continue
		}
		d.mu.Lock()
		h := append(d.history[sym], oi)
		if len(h) > 10 {
			h = h[len(h)-10:]
		}
		d.history[sym] = h
		d.mu.Unlock()
	}
	return firstErr
}

func (d *OpenInterest) topSymbols() []string {
	states := d.store.All()
	sort.Slice(states, func(i, j int) bool {
		if states[i].Current.QuoteVolume != states[j].Current.QuoteVolume {
			return states[i].Current.QuoteVolume > states[j].Current.QuoteVolume
		}
		return states[i].Symbol < states[j].Symbol
	})
	n := oiUniverse
	if len(states) < n {
		n = len(states)
	}
	out := make([]string, 0, n)
	for _, st := range states[:n] {
		out = append(out, st.Symbol)
	}
	return out
}

func (d *OpenInterest) Detect() []models.OpenInterestAlert {
	now := d.clock.Now()
	var out []models.OpenInterestAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, h := range d.history {
		if len(h) < 2 {
			continue
		}
		prev, cur := h[len(h)-2], h[len(h)-1]
		if prev.Value <= 0 {
			continue
		}
		oiChange := (cur.Value - prev.Value) / prev.Value * 100
		if math.Abs(oiChange) < oiThreshold {
			continue
		}
		t, ok := d.store.Ticker(sym)
		if !ok {
			continue
		}
		sig := ClassifyOI(oiChange, t.PriceChangePct)
		out = append(out, models.OpenInterestAlert{
			Symbol:      sym,
			OIChangePct: oiChange,
			PriceChange: t.PriceChangePct,
			Signal:      sig,
			Direction:   OITradeDirection(sig, t.PriceChangePct),
			Timestamp:   now,
		})
	}
	sortByMagnitude(out, func(a models.OpenInterestAlert) float64 { return a.OIChangePct }, func(a models.OpenInterestAlert) string { return a.Symbol })
	return out
}

// ChangeFor exposes the latest OI change percent for one symbol.
func (d *OpenInterest) ChangeFor(symbol string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.history[symbol]
	if len(h) < 2 || h[len(h)-2].Value <= 0 {
		return 0, false
	}
	return (h[len(h)-1].Value - h[len(h)-2].Value) / h[len(h)-2].Value * 100, true
}

func ClassifyOI(oiChange, priceChange float64) models.OISignal {
	switch {
	case oiChange > 0 && priceChange > 0:
		return models.OIStrongTrend
	case oiChange > 0 && priceChange < 0:
		return models.OIBuildingShorts
	case oiChange > 0:
		return models.OIBuildingLongs
	case oiChange < 0:
		return models.OIClosingPositions
	default:
		return models.OINeutral
	}
}

func OITradeDirection(sig models.OISignal, priceChange float64) models.Direction {
	switch sig {
	case models.OIStrongTrend:
		return directionOf(priceChange)
	case models.OIBuildingShorts:
		return models.DirectionShort
	case models.OIBuildingLongs:
		return models.DirectionLong
	default:
		return models.DirectionNeutral
	}
}

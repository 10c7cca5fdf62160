package detector

import (
	"math"
	"sync"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	liqSnapshots  = 10
	liqMinMovePct = 1.0
	liqMinVolume  = 5_000_000
	liqFactor     = 0.3
	liqWindow     = 5 * time.Minute
)

type liqEvent struct {
	notional float64
	ts       time.Time
}

// Liquidation estimates forced-close notional from public ticker data
// alone. The estimate is intentionally approximate: there is no ground
// truth liquidation stream behind it, only a heuristic over sharp moves
// on heavy volume.
type Liquidation struct {
	store *datastore.Store
	clock drepo.Clock

	mu     sync.Mutex
	prices map[string][]float64 // last liqSnapshots sampled prices
	events map[string][]liqEvent
}

func NewLiquidation(store *datastore.Store, clock drepo.Clock) *Liquidation {
	return &Liquidation{
		store:  store,
		clock:  clock,
		prices: make(map[string][]float64),
		events: make(map[string][]liqEvent),
	}
}

func (d *Liquidation) Name() string { return "liquidation" }

// Update samples every symbol's last price and records an estimated
// liquidation event when the move across the sample window is sharp
// enough on sufficient volume.
func (d *Liquidation) Update() {
	now := d.clock.Now()
	states := d.store.All()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range states {
		t := st.Current
		h := append(d.prices[t.Symbol], t.LastPrice)
		if len(h) > liqSnapshots {
			h = h[len(h)-liqSnapshots:]
		}
		d.prices[t.Symbol] = h

		if len(h) < liqSnapshots || h[0] <= 0 {
			continue
		}
		movePct := (h[len(h)-1] - h[0]) / h[0] * 100
		if math.Abs(movePct) <= liqMinMovePct || t.QuoteVolume <= liqMinVolume {
			continue
		}
		notional := t.QuoteVolume * math.Abs(movePct/100) * liqFactor
		d.events[t.Symbol] = append(d.events[t.Symbol], liqEvent{notional: notional, ts: now})
	}

	// expire events older than the accumulation window
	cutoff := now.Add(-liqWindow)
	for sym, evs := range d.events {
		kept := evs[:0]
		for _, ev := range evs {
			if ev.ts.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		if len(kept) == 0 {
			delete(d.events, sym)
			continue
		}
		d.events[sym] = kept
	}
}

func (d *Liquidation) Detect() []models.LiquidationAlert {
	now := d.clock.Now()
	var out []models.LiquidationAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, evs := range d.events {
		var total float64
		for _, ev := range evs {
			total += ev.notional
		}
		if total <= 0 {
			continue
		}
		var movePct float64
		if h := d.prices[sym]; len(h) >= 2 && h[0] > 0 {
			movePct = (h[len(h)-1] - h[0]) / h[0] * 100
		}
		out = append(out, models.LiquidationAlert{
			Symbol:       sym,
			EstimatedUSD: total,
			EventCount:   len(evs),
			MovePct:      movePct,
			Intensity:    liqIntensity(total),
			Direction:    directionOf(-movePct), // liquidations fuel the counter-move
			Timestamp:    now,
		})
	}
	sortByMagnitude(out, func(a models.LiquidationAlert) float64 { return a.EstimatedUSD }, func(a models.LiquidationAlert) string { return a.Symbol })
	return out
}

func liqIntensity(total float64) models.LiquidationIntensity {
	switch {
	case total >= 5_000_000:
		return models.LiqExtreme
	case total >= 1_000_000:
		return models.LiqHigh
	case total >= 500_000:
		return models.LiqMedium
	default:
		return models.LiqLow
	}
}

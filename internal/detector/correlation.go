package detector

import (
	"math"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	corrSnapshots   = 60
	corrMinPoints   = 10
	corrDecoupled   = 0.3
	corrOutperform  = 2.0
	corrBenchSymbol = "BTCUSDT"
)

// Correlation measures how tightly each symbol tracks the BTC benchmark
// over a rolling price window, flagging decoupling and outperformance.
type Correlation struct {
	store *datastore.Store
	clock drepo.Clock

	mu      sync.Mutex
	history map[string][]float64
}

func NewCorrelation(store *datastore.Store, clock drepo.Clock) *Correlation {
	return &Correlation{store: store, clock: clock, history: make(map[string][]float64)}
}

func (d *Correlation) Name() string { return "correlation" }

// Update samples one price point per symbol.
func (d *Correlation) Update() {
	states := d.store.All()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range states {
		h := append(d.history[st.Symbol], st.Current.LastPrice)
		if len(h) > corrSnapshots {
			h = h[len(h)-corrSnapshots:]
		}
		d.history[st.Symbol] = h
	}
}

func (d *Correlation) Detect() []models.CorrelationAlert {
	now := d.clock.Now()
	var out []models.CorrelationAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	btc := d.history[corrBenchSymbol]
	if len(btc) < corrMinPoints {
		return nil
	}

	for sym, h := range d.history {
		if sym == corrBenchSymbol || len(h) < corrMinPoints {
			continue
		}
		// equal-length tails of both series
		n := len(h)
		if len(btc) < n {
			n = len(btc)
		}
		alt := h[len(h)-n:]
		bench := btc[len(btc)-n:]

		r := pearson(alt, bench)
		altChange := windowChange(alt)
		btcChange := windowChange(bench)

		decoupled := math.Abs(r) < corrDecoupled
		outperf := 0.0
		if !decoupled {
			outperf = altChange - btcChange
		}
		if !decoupled && math.Abs(outperf) <= corrOutperform {
			continue
		}
		out = append(out, models.CorrelationAlert{
			Symbol:         sym,
			Correlation:    r,
			AltChange:      altChange,
			BTCChange:      btcChange,
			Decoupled:      decoupled,
			Outperformance: outperf,
			Direction:      directionOf(outperf),
			Timestamp:      now,
		})
	}
	sortByMagnitude(out, func(a models.CorrelationAlert) float64 { return a.Outperformance }, func(a models.CorrelationAlert) string { return a.Symbol })
	return out
}

// RelationFor exposes the symbol's current correlation and outperformance
// against the benchmark, used by the feature extractor.
func (d *Correlation) RelationFor(symbol string) (r, outperformance float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	btc := d.history[corrBenchSymbol]
	h := d.history[symbol]
	if symbol == corrBenchSymbol || len(btc) < corrMinPoints || len(h) < corrMinPoints {
		return 0, 0, false
	}
	n := len(h)
	if len(btc) < n {
		n = len(btc)
	}
	alt := h[len(h)-n:]
	bench := btc[len(btc)-n:]
	r = pearson(alt, bench)
	return r, windowChange(alt) - windowChange(bench), true
}

func windowChange(h []float64) float64 {
	if len(h) < 2 || h[0] <= 0 {
		return 0
	}
	return (h[len(h)-1] - h[0]) / h[0] * 100
}

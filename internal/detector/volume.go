package detector

import (
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	volumeSnapshots  = 60
	volumeRecentSpan = 10
	volumeAvgSpan    = 20
)

// Volume compares the recent quote-volume flow rate against its average.
// It keeps its own count-bounded snapshot ring, fed on every ingest batch.
// Note the rates derive from cumulative 24h volume deltas, which is an
// approximation near the UTC midnight roll-over.
type Volume struct {
	store      *datastore.Store
	clock      drepo.Clock
	multiplier float64
	minQuote   float64

	mu       sync.Mutex
	tracking map[string][]float64 // cumulative quote volume, oldest first
}

func NewVolume(store *datastore.Store, clock drepo.Clock, multiplier, minQuote float64) *Volume {
	return &Volume{
		store:      store,
		clock:      clock,
		multiplier: multiplier,
		minQuote:   minQuote,
		tracking:   make(map[string][]float64),
	}
}

func (d *Volume) Name() string { return "volume" }

// UpdateTracking records one cumulative-volume snapshot per symbol.
// Called by the scheduler after every ingested batch.
func (d *Volume) UpdateTracking(batch []models.Ticker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range batch {
		h := append(d.tracking[t.Symbol], t.QuoteVolume)
		if len(h) > volumeSnapshots {
			h = h[len(h)-volumeSnapshots:]
		}
		d.tracking[t.Symbol] = h
	}
}

// rates returns (recentRate, avgRate, ok). Needs enough snapshots to cover
// the recent span plus the older averaging span.
func rates(h []float64) (float64, float64, bool) {
	need := volumeRecentSpan + volumeAvgSpan + 1
	if len(h) < need {
		return 0, 0, false
	}
	last := len(h) - 1
	recent := (h[last] - h[last-volumeRecentSpan]) / volumeRecentSpan
	avg := (h[last-volumeRecentSpan] - h[last-volumeRecentSpan-volumeAvgSpan]) / volumeAvgSpan
	return recent, avg, true
}

func (d *Volume) Detect() []models.VolumeAlert {
	now := d.clock.Now()
	var out []models.VolumeAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range d.store.All() {
		if st.Current.QuoteVolume <= d.minQuote {
			continue
		}
		recent, avg, ok := rates(d.tracking[st.Symbol])
		if !ok || avg <= 0 {
			continue
		}
		mult := recent / avg
		if mult < d.multiplier {
			continue
		}
		out = append(out, models.VolumeAlert{
			Symbol:      st.Symbol,
			Multiplier:  mult,
			RecentRate:  recent,
			AverageRate: avg,
			QuoteVolume: st.Current.QuoteVolume,
			Direction:   directionOf(st.Current.PriceChangePct),
			Timestamp:   now,
		})
	}
	sortByMagnitude(out, func(a models.VolumeAlert) float64 { return a.Multiplier }, func(a models.VolumeAlert) string { return a.Symbol })
	return out
}

// MultiplierFor exposes the current spike multiplier for one symbol, used
// by the fusion engine's volume component.
func (d *Volume) MultiplierFor(symbol string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	recent, avg, ok := rates(d.tracking[symbol])
	if !ok || avg <= 0 {
		return 0, false
	}
	return recent / avg, true
}

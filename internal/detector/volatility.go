package detector

import (
	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// Volatility flags symbols with outsized 24h moves.
type Volatility struct {
	store    *datastore.Store
	clock    drepo.Clock
	minPct   float64
	critical float64
}

func NewVolatility(store *datastore.Store, clock drepo.Clock, minPct, critical float64) *Volatility {
	return &Volatility{store: store, clock: clock, minPct: minPct, critical: critical}
}

func (d *Volatility) Name() string { return "volatility" }

func (d *Volatility) Detect() []models.VolatilityAlert {
	now := d.clock.Now()
	var out []models.VolatilityAlert
	for _, st := range d.store.All() {
		ch := st.Current.PriceChangePct
		if ch < d.minPct && ch > -d.minPct {
			continue
		}
		out = append(out, models.VolatilityAlert{
			Symbol:     st.Symbol,
			Change24h:  ch,
			LastPrice:  st.Current.LastPrice,
			IsCritical: ch >= d.critical || ch <= -d.critical,
			Direction:  directionOf(ch),
			Timestamp:  now,
		})
	}
	sortByMagnitude(out, func(a models.VolatilityAlert) float64 { return a.Change24h }, func(a models.VolatilityAlert) string { return a.Symbol })
	return out
}

// CriticalSet returns the symbols currently above the critical threshold.
// The scheduler diffs consecutive sets to fire one edge alert per entrant.
func (d *Volatility) CriticalSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, a := range d.Detect() {
		if a.IsCritical {
			set[a.Symbol] = struct{}{}
		}
	}
	return set
}

package detector

import (
	"math"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// Velocity measures short-window price speed in percent per minute and
// classifies the trend against the previous observation.
type Velocity struct {
	store       *datastore.Store
	clock       drepo.Clock
	minVelocity float64 // %/min
	accelThresh float64

	mu   sync.Mutex
	prev map[string]float64 // last velocity per symbol
}

func NewVelocity(store *datastore.Store, clock drepo.Clock, minVelocity, accelThresh float64) *Velocity {
	return &Velocity{
		store:       store,
		clock:       clock,
		minVelocity: minVelocity,
		accelThresh: accelThresh,
		prev:        make(map[string]float64),
	}
}

func (d *Velocity) Name() string { return "velocity" }

// VelocityFor computes %/min over the symbol's price history.
// Requires at least two points.
func (d *Velocity) VelocityFor(st datastore.SymbolState) (float64, bool) {
	h := st.PriceHistory
	if len(h) < 2 {
		return 0, false
	}
	first, last := h[0], h[len(h)-1]
	minutes := last.TS.Sub(first.TS).Minutes()
	if minutes <= 0 || first.Price == 0 {
		return 0, false
	}
	changePct := (last.Price - first.Price) / first.Price * 100
	return changePct / minutes, true
}

func (d *Velocity) Detect() []models.VelocityAlert {
	now := d.clock.Now()
	var out []models.VelocityAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range d.store.All() {
		v, ok := d.VelocityFor(st)
		if !ok {
			continue
		}
		prev, seen := d.prev[st.Symbol]
		d.prev[st.Symbol] = v
		if math.Abs(v) < d.minVelocity {
			continue
		}
		trend := models.TrendSteady
		if seen {
			switch {
			case math.Abs(v)-math.Abs(prev) > d.accelThresh:
				trend = models.TrendAccelerating
			case math.Abs(v)-math.Abs(prev) < -d.accelThresh:
				trend = models.TrendDecelerating
			}
		}
		out = append(out, models.VelocityAlert{
			Symbol:    st.Symbol,
			Velocity:  v,
			Trend:     trend,
			LastPrice: st.Current.LastPrice,
			Direction: directionOf(v),
			Timestamp: now,
		})
	}
	sortByMagnitude(out, func(a models.VelocityAlert) float64 { return a.Velocity }, func(a models.VelocityAlert) string { return a.Symbol })
	return out
}

// Acceleration reports the velocity delta against the previous call.
func (d *Velocity) Acceleration(symbol string, current float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.prev[symbol]
	if !ok {
		return 0
	}
	return current - prev
}

package detector

import (
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// NewListing tracks symbols first seen after startup and their move since
// the first observed price.
type NewListing struct {
	store *datastore.Store
	clock drepo.Clock

	mu    sync.Mutex
	first map[string]float64 // first observed price per listing
}

func NewNewListing(store *datastore.Store, clock drepo.Clock) *NewListing {
	return &NewListing{store: store, clock: clock, first: make(map[string]float64)}
}

func (d *NewListing) Name() string { return "new_listing" }

// Track records the first observed price of a freshly listed symbol.
func (d *NewListing) Track(symbols []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sym := range symbols {
		if _, seen := d.first[sym]; seen {
			continue
		}
		if p, ok := d.store.LastPrice(sym); ok {
			d.first[sym] = p
		}
	}
}

func (d *NewListing) Detect() []models.NewListingAlert {
	now := d.clock.Now()
	var out []models.NewListingAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, firstPrice := range d.first {
		st, ok := d.store.Get(sym)
		if !ok || !st.IsNew {
			continue
		}
		change := 0.0
		if firstPrice > 0 {
			change = (st.Current.LastPrice - firstPrice) / firstPrice * 100
		}
		out = append(out, models.NewListingAlert{
			Symbol:          sym,
			FirstPrice:      firstPrice,
			CurrentPrice:    st.Current.LastPrice,
			ChangeFromFirst: change,
			FirstSeen:       st.FirstSeen,
			Timestamp:       now,
		})
	}
	sortByMagnitude(out, func(a models.NewListingAlert) float64 { return a.ChangeFromFirst }, func(a models.NewListingAlert) string { return a.Symbol })
	return out
}

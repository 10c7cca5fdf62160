package detector

import (
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	whaleSnapshots  = 60
	whaleRecentSpan = 10
	whaleOlderSpan  = 20
	whaleMinSize    = 100_000
	whaleMinRatio   = 3.0
	whaleStrong     = 5.0
)

type whalePoint struct {
	volume float64 // cumulative quote volume
	price  float64
}

// Whale watches for step-ups in quote-volume flow far above the symbol's
// own baseline, reading the concurrent price move as the flow's side.
type Whale struct {
	store *datastore.Store
	clock drepo.Clock

	mu      sync.Mutex
	history map[string][]whalePoint
}

func NewWhale(store *datastore.Store, clock drepo.Clock) *Whale {
	return &Whale{store: store, clock: clock, history: make(map[string][]whalePoint)}
}

func (d *Whale) Name() string { return "whale" }

// Update samples one volume/price point per symbol.
func (d *Whale) Update() {
	states := d.store.All()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range states {
		h := append(d.history[st.Symbol], whalePoint{volume: st.Current.QuoteVolume, price: st.Current.LastPrice})
		if len(h) > whaleSnapshots {
			h = h[len(h)-whaleSnapshots:]
		}
		d.history[st.Symbol] = h
	}
}

func (d *Whale) Detect() []models.WhaleAlert {
	now := d.clock.Now()
	var out []models.WhaleAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, h := range d.history {
		need := whaleRecentSpan + whaleOlderSpan + 1
		if len(h) < need {
			continue
		}
		last := len(h) - 1
		recentDelta := h[last].volume - h[last-whaleRecentSpan].volume
		olderDelta := h[last-whaleRecentSpan].volume - h[last-whaleRecentSpan-whaleOlderSpan].volume
		if recentDelta <= whaleMinSize {
			continue
		}
		// scale the older delta to the same span before comparing
		olderPerSpan := olderDelta / float64(whaleOlderSpan) * float64(whaleRecentSpan)
		if olderPerSpan <= 0 {
			continue
		}
		ratio := recentDelta / olderPerSpan
		if ratio < whaleMinRatio {
			continue
		}
		priceMove := 0.0
		if p0 := h[last-whaleRecentSpan].price; p0 > 0 {
			priceMove = (h[last].price - p0) / p0 * 100
		}
		out = append(out, models.WhaleAlert{
			Symbol:     sym,
			SizeUSD:    recentDelta,
			Ratio:      ratio,
			Activity:   whaleActivity(ratio, priceMove),
			Confidence: clamp(recentDelta*25/1_000_000+ratio*50/10, 0, 100),
			Direction:  directionOf(priceMove),
			Timestamp:  now,
		})
	}
	sortByMagnitude(out, func(a models.WhaleAlert) float64 { return a.SizeUSD }, func(a models.WhaleAlert) string { return a.Symbol })
	return out
}

// FlowFor exposes the current flow step-up for one symbol, used by the
// feature extractor. ok is false below the alerting thresholds.
func (d *Whale) FlowFor(symbol string) (sizeUSD, ratio float64, ok bool) {
	d.mu.Lock()
	h := d.history[symbol]
	d.mu.Unlock()

	need := whaleRecentSpan + whaleOlderSpan + 1
	if len(h) < need {
		return 0, 0, false
	}
	last := len(h) - 1
	recentDelta := h[last].volume - h[last-whaleRecentSpan].volume
	olderDelta := h[last-whaleRecentSpan].volume - h[last-whaleRecentSpan-whaleOlderSpan].volume
	olderPerSpan := olderDelta / float64(whaleOlderSpan) * float64(whaleRecentSpan)
	if recentDelta <= whaleMinSize || olderPerSpan <= 0 {
		return 0, 0, false
	}
	r := recentDelta / olderPerSpan
	if r < whaleMinRatio {
		return 0, 0, false
	}
	return recentDelta, r, true
}

func whaleActivity(ratio, priceMove float64) models.WhaleActivity {
	sustained := ratio > whaleStrong
	switch {
	case sustained && priceMove >= 0:
		return models.WhaleAccumulation
	case sustained:
		return models.WhaleDistribution
	case priceMove >= 0:
		return models.WhaleLargeBuy
	default:
		return models.WhaleLargeSell
	}
}

package detector

import (
	"sort"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

// component weights of the greed/fear composite
const (
	sentWeightFunding    = 0.30
	sentWeightMomentum   = 0.35
	sentWeightVolatility = 0.15
	sentWeightOI         = 0.20

	sentTopSymbols = 20
)

// Sentiment reduces funding, momentum, volatility and open-interest state
// into a 0-100 greed/fear composite, per symbol and market-wide.
type Sentiment struct {
	store    *datastore.Store
	clock    drepo.Clock
	funding  *Funding
	velocity *Velocity
	oi       *OpenInterest
}

func NewSentiment(store *datastore.Store, clock drepo.Clock, funding *Funding, velocity *Velocity, oi *OpenInterest) *Sentiment {
	return &Sentiment{store: store, clock: clock, funding: funding, velocity: velocity, oi: oi}
}

func (d *Sentiment) Name() string { return "sentiment" }

// ScoreSymbol computes the composite for one symbol. Neutral inputs score
// 50; missing inputs count as neutral rather than dragging the composite.
func (d *Sentiment) ScoreSymbol(st datastore.SymbolState) float64 {
	t := st.Current

	fundingScore := 50.0
	if fr, ok := d.funding.RateFor(t.Symbol); ok {
		// crowded longs read as greed, crowded shorts as fear
		fundingScore = clamp(50+fr.Rate/0.1*25, 0, 100)
	}

	momentumScore := clamp(50+t.PriceChangePct*2.5, 0, 100)

	volScore := 50.0
	if v, ok := d.velocity.VelocityFor(st); ok {
		volScore = clamp(50+v*20, 0, 100)
	}

	oiScore := 50.0
	if change, ok := d.oi.ChangeFor(t.Symbol); ok {
		oiScore = clamp(50+change*5, 0, 100)
	}

	return fundingScore*sentWeightFunding +
		momentumScore*sentWeightMomentum +
		volScore*sentWeightVolatility +
		oiScore*sentWeightOI
}

// Market aggregates per-symbol composites into the market view, keeping
// the extremes for the snapshot.
func (d *Sentiment) Market() models.MarketSentiment {
	now := d.clock.Now()
	states := d.store.All()
	if len(states) == 0 {
		return models.MarketSentiment{Score: 50, Label: models.LabelForScore(50), Timestamp: now}
	}

	var sum float64
	var positive int
	symbols := make([]models.SymbolSentiment, 0, len(states))
	for _, st := range states {
		score := d.ScoreSymbol(st)
		sum += score
		if st.Current.PriceChangePct > 0 {
			positive++
		}
		symbols = append(symbols, models.SymbolSentiment{
			Symbol:    st.Symbol,
			Score:     score,
			Label:     models.LabelForScore(score),
			Timestamp: now,
		})
	}

	// keep the most extreme composites, furthest from neutral first
	sort.Slice(symbols, func(i, j int) bool {
		di, dj := absFrom50(symbols[i].Score), absFrom50(symbols[j].Score)
		if di != dj {
			return di > dj
		}
		return symbols[i].Symbol < symbols[j].Symbol
	})
	if len(symbols) > sentTopSymbols {
		symbols = symbols[:sentTopSymbols]
	}

	score := sum / float64(len(states))
	return models.MarketSentiment{
		Score:     score,
		Label:     models.LabelForScore(score),
		Breadth:   float64(positive) / float64(len(states)),
		Symbols:   symbols,
		Timestamp: now,
	}
}

func absFrom50(s float64) float64 {
	if s < 50 {
		return 50 - s
	}
	return s - 50
}

package engine

import (
	"math"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
)

// trigger confidence contributions
const (
	reversalRSIExtreme     = 20
	reversalRSIDivergence  = 20
	reversalExtremeFunding = 25
	reversalOIDivergence   = 15
	reversalVolumeClimax   = 20

	// a single trigger is noise; two or more make a reversal
	reversalMinTriggers = 2
)

// reversalFor accumulates the independent reversal triggers for one symbol.
// Direction is set by the first trigger to fire; at most one signal per
// symbol per cycle.
func (e *Engine) reversalFor(st datastore.SymbolState) (models.ReversalSignal, bool) {
	t := st.Current
	var triggers []models.ReversalTrigger
	var confidence float64
	direction := models.DirectionNeutral

	fire := func(tr models.ReversalTrigger, dir models.Direction, score float64) {
		triggers = append(triggers, tr)
		confidence += score
		if direction == models.DirectionNeutral {
			direction = dir
		}
	}

	mtf, hasMTF := e.det.MTF.StateFor(st.Symbol)

	if hasMTF {
		switch {
		case mtf.RSI1h >= 70:
			fire(models.TriggerRSIExtreme, models.DirectionShort, reversalRSIExtreme)
		case mtf.RSI1h > 0 && mtf.RSI1h <= 30:
			fire(models.TriggerRSIExtreme, models.DirectionLong, reversalRSIExtreme)
		}
		switch mtf.Divergence {
		case models.DivergenceBullish:
			fire(models.TriggerRSIDivergence, models.DirectionLong, reversalRSIDivergence)
		case models.DivergenceBearish:
			fire(models.TriggerRSIDivergence, models.DirectionShort, reversalRSIDivergence)
		}
	}

	if fr, ok := e.det.Funding.RateFor(st.Symbol); ok && math.Abs(fr.Rate) > 0.1 {
		// crowded side pays; the reversal runs against it
		dir := models.DirectionShort
		if fr.Rate < 0 {
			dir = models.DirectionLong
		}
		fire(models.TriggerExtremeFunding, dir, reversalExtremeFunding)
	}

	if change, ok := e.det.OI.ChangeFor(st.Symbol); ok {
		if math.Abs(change) >= 2 && change*t.PriceChangePct < 0 {
			fire(models.TriggerOIDivergence, signDirection(-t.PriceChangePct), reversalOIDivergence)
		}
	}

	if mult, ok := e.det.Volume.MultiplierFor(st.Symbol); ok {
		if mult >= 5 && math.Abs(t.PriceChangePct) >= 10 {
			fire(models.TriggerVolumeClimax, signDirection(-t.PriceChangePct), reversalVolumeClimax)
		}
	}

	if len(triggers) < reversalMinTriggers || direction == models.DirectionNeutral {
		return models.ReversalSignal{}, false
	}
	return models.ReversalSignal{
		Symbol:     st.Symbol,
		Direction:  direction,
		Confidence: clamp(confidence, 0, 100),
		Triggers:   triggers,
		Price:      t.LastPrice,
		Timestamp:  e.clock.Now(),
	}, true
}

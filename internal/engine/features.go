package engine

import (
	"PulseScan/internal/datastore"
	"PulseScan/internal/detector"
	"PulseScan/internal/domain/models"
)

// Features extracts the predictor vector for an emitted signal. Missing
// detector data leaves the neutral zero encodings in place.
func (e *Engine) Features(sig *models.SmartSignal, st datastore.SymbolState) *models.SignalFeatures {
	t := st.Current
	f := &models.SignalFeatures{
		SignalID: sig.ID,
		Symbol:   sig.Symbol,

		PriceChange24h: t.PriceChangePct,
		PriceChange5m:  historyChange(st.PriceHistory),
		HighLowRange:   highLowRange(t),
		PricePosition:  detector.PricePosition(t),

		VolumeQuote24h: t.QuoteVolume,
		VolumeChange1h: volumeChange(st.VolumeHistory),

		SmartConfidence: sig.Confidence,
		ComponentCount:  len(sig.Components),
		EntryType:       sig.EntryType.Encode(),
		RiskLevel:       sig.RiskLevel.Encode(),

		Direction: sig.Direction.Encode(),
	}

	if mult, ok := e.det.Volume.MultiplierFor(sig.Symbol); ok {
		f.VolumeMultiplier = mult
	}

	if v, ok := e.det.Velocity.VelocityFor(st); ok {
		f.Velocity = v
		f.Acceleration = e.det.Velocity.Acceleration(sig.Symbol, v)
		switch {
		case f.Acceleration > 0.1:
			f.TrendState = models.TrendAccelerating.Encode()
		case f.Acceleration < -0.1:
			f.TrendState = models.TrendDecelerating.Encode()
		}
	}

	if mtf, ok := e.det.MTF.StateFor(sig.Symbol); ok {
		f.PriceChange1h = mtf.Change1h
		f.PriceChange15m = mtf.Change15m
		f.RSI1h = mtf.RSI1h
		f.MTFAlignment = mtf.Alignment.Encode()
		f.DivergenceType = mtf.Divergence.Encode()
	} else {
		f.MTFAlignment = models.AlignMixed.Encode()
	}

	if fr, ok := e.det.Funding.RateFor(sig.Symbol); ok {
		fsig := detector.ClassifyFunding(fr.Rate, t.PriceChangePct)
		f.FundingRate = fr.Rate
		f.FundingSignal = fsig.Encode()
		if detector.FundingTradeDirection(fsig) == sig.Direction {
			f.FundingDirectionMatch = 1
		}
	}

	if change, ok := e.det.OI.ChangeFor(sig.Symbol); ok {
		f.OIChangePercent = change
		f.OISignal = detector.ClassifyOI(change, t.PriceChangePct).Encode()
		if change*t.PriceChangePct > 0 {
			f.OIPriceAlignment = 1
		} else if change*t.PriceChangePct < 0 {
			f.OIPriceAlignment = -1
		}
	}

	if pat, ok := e.det.Pattern.PatternFor(sig.Symbol); ok {
		f.PatternType = pat.Pattern.Encode()
		f.PatternConfidence = pat.Confidence
		f.DistanceFromLevel = pat.DistancePct
	}

	if setup, ok := e.det.Entry.SetupFor(sig.Symbol); ok {
		f.ATRPercent = setup.ATRPct
		if setup.VWAP > 0 {
			f.VWAPDistance = (t.LastPrice - setup.VWAP) / setup.VWAP * 100
		}
		f.RiskRewardRatio = setup.RiskReward
	}

	if _, ratio, ok := e.det.Whale.FlowFor(sig.Symbol); ok {
		f.WhaleActivity = ratio
	}

	if r, outperf, ok := e.det.Correlation.RelationFor(sig.Symbol); ok {
		f.BTCCorrelation = r
		f.BTCOutperformance = outperf
	}

	return f
}

func historyChange(h []models.PricePoint) float64 {
	if len(h) < 2 || h[0].Price <= 0 {
		return 0
	}
	return (h[len(h)-1].Price - h[0].Price) / h[0].Price * 100
}

func volumeChange(h []models.VolumePoint) float64 {
	if len(h) < 2 || h[0].QuoteVolume <= 0 {
		return 0
	}
	return (h[len(h)-1].QuoteVolume - h[0].QuoteVolume) / h[0].QuoteVolume * 100
}

func highLowRange(t models.Ticker) float64 {
	if t.OpenPrice <= 0 {
		return 0
	}
	return (t.HighPrice - t.LowPrice) / t.OpenPrice * 100
}

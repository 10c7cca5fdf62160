package engine

import (
	"context"
	"math"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	"PulseScan/pkg/logger"
)

// enhance asks the predictor for a win probability and blends it into the
// rule-based confidence. Any failure degrades silently: the signal keeps
// its rule-based confidence and is emitted regardless.
func (e *Engine) enhance(ctx context.Context, sig *models.SmartSignal, st datastore.SymbolState) {
	if e.predictor == nil || !e.predictor.Healthy(ctx) {
		return
	}

	features := e.Features(sig, st)
	pred, err := e.predictor.Predict(ctx, features)
	if err != nil {
		e.log.Debug("prediction skipped",
			logger.String("symbol", sig.Symbol),
			logger.Error(err),
		)
		return
	}

	sig.MLPrediction = pred
	sig.QualityTier = pred.QualityTier
	combined := BlendConfidence(pred.WinProbability*100, sig.Confidence, e.cfg.WeightML, e.cfg.WeightRule)
	sig.CombinedConfidence = &combined
}

// BlendConfidence mixes the ML and rule confidences, rewarding agreement
// and penalising strong disagreement.
func BlendConfidence(ml, rule, weightML, weightRule float64) float64 {
	base := ml*weightML + rule*weightRule
	if (ml > 60 && rule > 60) || (ml < 40 && rule < 40) {
		base *= 1.1
	}
	if math.Abs(ml-rule) > 30 {
		base *= 0.9
	}
	return clamp(base, 0, 100)
}

package outcome

import (
	"context"
	"fmt"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/logger"
)

// completed rows fetched per training run
const trainBatchLimit = 5000

// Trainer ships labelled signal rows back to the predictor and records
// the resulting model metrics. It stays idle until enough completed
// rows exist.
type Trainer struct {
	sink      drepo.SignalStore
	predictor drepo.Predictor
	log       *logger.Logger
	minRows   int
}

func NewTrainer(sink drepo.SignalStore, predictor drepo.Predictor, log *logger.Logger, minRows int) *Trainer {
	return &Trainer{sink: sink, predictor: predictor, log: log, minRows: minRows}
}

// RunOnce performs one training pass. Not enough data or an unhealthy
// predictor is not an error, just a skipped pass.
func (t *Trainer) RunOnce(ctx context.Context) error {
	rows, err := t.sink.CompletedSignals(ctx, trainBatchLimit)
	if err != nil {
		return fmt.Errorf("load training rows: %w", err)
	}
	if len(rows) < t.minRows {
		return nil
	}
	if !t.predictor.Healthy(ctx) {
		return nil
	}

	if err := t.predictor.Train(ctx, rows); err != nil {
		return fmt.Errorf("train on %d rows: %w", len(rows), err)
	}
	t.log.Info("model retrained", logger.Int("rows", len(rows)))

	stats, err := t.predictor.Stats(ctx)
	if err != nil {
		t.log.Debug("model stats unavailable", logger.Error(err))
		return nil
	}

	// the service reports model quality; realised and predicted win
	// rates come from the batch we just trained on
	wins := 0
	var probSum float64
	var probN int
	for _, rec := range rows {
		if rec.Outcome == models.OutcomeWin {
			wins++
		}
		if rec.MLPrediction != nil {
			probSum += rec.MLPrediction.WinProbability
			probN++
		}
	}
	stats["win_rate_actual"] = float64(wins) / float64(len(rows))
	if probN > 0 {
		stats["win_rate_predicted"] = probSum / float64(probN)
	}
	return t.sink.SaveModelMetrics(ctx, stats)
}

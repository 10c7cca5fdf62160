package outcome

import (
	"context"
	"math"
	"testing"

	"PulseScan/internal/domain/models"
	"PulseScan/pkg/logger"
)

type trainerSink struct {
	*fakeSink
	completed []*models.SignalRecord
	metrics   map[string]any
}

func (s *trainerSink) CompletedSignals(context.Context, int) ([]*models.SignalRecord, error) {
	return s.completed, nil
}

func (s *trainerSink) SaveModelMetrics(_ context.Context, m map[string]any) error {
	s.metrics = m
	return nil
}

type fakePredictor struct {
	healthy bool
	trained int
	stats   map[string]any
}

func (p *fakePredictor) Predict(context.Context, *models.SignalFeatures) (*models.MLPrediction, error) {
	return nil, nil
}

func (p *fakePredictor) Train(_ context.Context, rows []*models.SignalRecord) error {
	p.trained = len(rows)
	return nil
}

func (p *fakePredictor) Healthy(context.Context) bool { return p.healthy }

func (p *fakePredictor) Stats(context.Context) (map[string]any, error) { return p.stats, nil }

func trainerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestTrainerArchivesWinRates(t *testing.T) {
	sink := &trainerSink{
		fakeSink: newFakeSink(),
		completed: []*models.SignalRecord{
			{ID: "a", Outcome: models.OutcomeWin, MLPrediction: &models.MLPrediction{WinProbability: 0.8}},
			{ID: "b", Outcome: models.OutcomeLoss, MLPrediction: &models.MLPrediction{WinProbability: 0.4}},
			{ID: "c", Outcome: models.OutcomeWin},
			{ID: "d", Outcome: models.OutcomeLoss},
		},
	}
	pred := &fakePredictor{healthy: true, stats: map[string]any{"model_version": "v2"}}

	tr := NewTrainer(sink, pred, trainerLogger(t), 2)
	if err := tr.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.trained != 4 {
		t.Fatalf("rows trained = %d, want 4", pred.trained)
	}
	if sink.metrics == nil {
		t.Fatalf("model metrics not archived")
	}
	if sink.metrics["model_version"] != "v2" {
		t.Fatalf("service stats must pass through, got %v", sink.metrics["model_version"])
	}
	if got := sink.metrics["win_rate_actual"].(float64); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("win_rate_actual = %v, want 0.5", got)
	}
	if got := sink.metrics["win_rate_predicted"].(float64); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("win_rate_predicted = %v, want 0.6 (mean of scored rows)", got)
	}
}

func TestTrainerSkipsBelowMinimumOrUnhealthy(t *testing.T) {
	sink := &trainerSink{
		fakeSink:  newFakeSink(),
		completed: []*models.SignalRecord{{ID: "a", Outcome: models.OutcomeWin}},
	}
	pred := &fakePredictor{healthy: true, stats: map[string]any{}}

	tr := NewTrainer(sink, pred, trainerLogger(t), 5)
	if err := tr.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.trained != 0 || sink.metrics != nil {
		t.Fatalf("training must wait for enough rows")
	}

	pred.healthy = false
	tr = NewTrainer(sink, pred, trainerLogger(t), 1)
	if err := tr.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.trained != 0 {
		t.Fatalf("unhealthy predictor must not be trained")
	}
}

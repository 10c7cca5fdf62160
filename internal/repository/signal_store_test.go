package repository

import (
	"math"
	"testing"
)

func TestModelMetricsRowFromStats(t *testing.T) {
	row, err := newModelMetricsRow(map[string]any{
		"model_version":       "v3",
		"training_date":       "2025-06-01T12:00:00Z",
		"training_samples":    float64(1200),
		"validation_auc":      0.81,
		"validation_accuracy": 0.74,
		"win_rate_predicted":  0.58,
		"win_rate_actual":     0.55,
		"feature_importance":  map[string]float64{"rsi": 0.2},
	})
	if err != nil {
		t.Fatalf("map stats: %v", err)
	}
	if row.modelVersion != "v3" || row.trainingDate != "2025-06-01T12:00:00Z" {
		t.Fatalf("version/date = %q/%q", row.modelVersion, row.trainingDate)
	}
	if row.trainingSamples != 1200 {
		t.Fatalf("samples = %d, want 1200", row.trainingSamples)
	}
	if math.Abs(row.validationAUC-0.81) > 1e-9 || math.Abs(row.validationAccuracy-0.74) > 1e-9 {
		t.Fatalf("auc/accuracy = %v/%v", row.validationAUC, row.validationAccuracy)
	}
	if math.Abs(row.winRatePredicted-0.58) > 1e-9 || math.Abs(row.winRateActual-0.55) > 1e-9 {
		t.Fatalf("win rates = %v/%v", row.winRatePredicted, row.winRateActual)
	}
	if row.featureImportance != `{"rsi":0.2}` {
		t.Fatalf("feature importance = %q", row.featureImportance)
	}
}

func TestModelMetricsRowToleratesAbsentFields(t *testing.T) {
	row, err := newModelMetricsRow(map[string]any{"model_version": "v1"})
	if err != nil {
		t.Fatalf("map stats: %v", err)
	}
	if row.modelVersion != "v1" {
		t.Fatalf("version = %q", row.modelVersion)
	}
	if row.trainingSamples != 0 || row.validationAUC != 0 || row.featureImportance != "" {
		t.Fatalf("absent fields must stay zero, got %+v", row)
	}
}

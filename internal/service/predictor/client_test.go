package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PulseScan/internal/domain/models"
	"PulseScan/pkg/cache"
	"PulseScan/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestPredictCachesBySignalID(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/predict" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		hits++
		mu.Unlock()

		var req struct {
			Features models.SignalFeatures `json:"features"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"prediction": models.MLPrediction{
				SignalID:       req.Features.SignalID,
				WinProbability: 0.72,
				QualityTier:    models.TierHigh,
				Confidence:     72,
				ModelVersion:   "v3",
			},
		})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}, cache.NewMemoryCache(), newFakeClock(), testLogger(t))

	features := &models.SignalFeatures{SignalID: "sig-1", Symbol: "BTCUSDT"}
	pred, err := client.Predict(context.Background(), features)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.WinProbability != 0.72 || pred.QualityTier != models.TierHigh {
		t.Fatalf("prediction = %+v", pred)
	}

	if _, err := client.Predict(context.Background(), features); err != nil {
		t.Fatalf("cached predict: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1 (second call cached)", hits)
	}
}

func TestHealthyCachesVerdict(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		ok := healthy
		mu.Unlock()
		status := "starting"
		if ok {
			status = "healthy"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "model_loaded": ok})
	}))
	defer srv.Close()

	clock := newFakeClock()
	client := New(Config{BaseURL: srv.URL, Timeout: time.Second, HealthTTL: 30 * time.Second}, cache.NewMemoryCache(), clock, testLogger(t))

	if client.Healthy(context.Background()) {
		t.Fatalf("service not ready yet")
	}

	mu.Lock()
	healthy = true
	mu.Unlock()

	if client.Healthy(context.Background()) {
		t.Fatalf("verdict must be cached inside the TTL")
	}
	clock.Advance(31 * time.Second)
	if !client.Healthy(context.Background()) {
		t.Fatalf("verdict must refresh after the TTL")
	}
}

// The scoring service serves /health at its root and everything else
// under /api/v1, so one base URL must satisfy both.
func TestRootBaseURLServesHealthAndPredict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "model_loaded": true})
	})
	mux.HandleFunc("/api/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"prediction": models.MLPrediction{SignalID: "sig-1", WinProbability: 0.6},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: time.Second}, cache.NewMemoryCache(), newFakeClock(), testLogger(t))

	if !client.Healthy(context.Background()) {
		t.Fatalf("healthy service reported unhealthy")
	}
	pred, err := client.Predict(context.Background(), &models.SignalFeatures{SignalID: "sig-1"})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.WinProbability != 0.6 {
		t.Fatalf("prediction = %+v", pred)
	}
}

func TestHealthyFalseWhenUnreachable(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, cache.NewMemoryCache(), newFakeClock(), testLogger(t))
	if client.Healthy(context.Background()) {
		t.Fatalf("unreachable service must report unhealthy")
	}
}

func TestTrainShipsCompletedRowsOnly(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/train/sqlite-data" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "accepted"})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: time.Second}, cache.NewMemoryCache(), newFakeClock(), testLogger(t))

	rows := []*models.SignalRecord{
		{ID: "w", Outcome: models.OutcomeWin, Features: &models.SignalFeatures{SignalID: "w", Symbol: "AAAUSDT"}},
		{ID: "l", Outcome: models.OutcomeLoss, Features: &models.SignalFeatures{SignalID: "l", Symbol: "BBBUSDT"}},
		{ID: "p", Outcome: models.OutcomePending, Features: &models.SignalFeatures{SignalID: "p"}},
		{ID: "nf", Outcome: models.OutcomeWin},
	}
	if err := client.Train(context.Background(), rows); err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows shipped = %d, want 2", len(got))
	}
	if got[0]["outcome"].(float64) != 1 || got[1]["outcome"].(float64) != 0 {
		t.Fatalf("outcomes = %v/%v", got[0]["outcome"], got[1]["outcome"])
	}
}

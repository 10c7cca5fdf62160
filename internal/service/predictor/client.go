// Package predictor adapts the external ML scoring service to the
// Predictor port. Every failure mode degrades silently; callers emit
// their rule-based signal either way.
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/cache"
	phttp "PulseScan/pkg/http"
	"PulseScan/pkg/logger"
)

// The scoring service mounts its API under a version prefix while the
// health probe lives at the application root.
const apiPrefix = "/api/v1"

// Config carries the predictor client tunables.
type Config struct {
	BaseURL   string        // service root, without the API prefix
	Timeout   time.Duration // per prediction call
	CacheTTL  time.Duration // prediction result cache
	HealthTTL time.Duration // health probe cache
}

// Client talks to the scoring service over HTTP. Predictions are cached
// briefly per signal so the fusion loop never scores one signal twice.
type Client struct {
	http  *phttp.Client
	cache cache.Service
	clock drepo.Clock
	log   *logger.Logger
	cfg   Config

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

func New(cfg Config, store cache.Service, clock drepo.Clock, log *logger.Logger) drepo.Predictor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = 30 * time.Second
	}
	if store == nil {
		store = cache.NewMemoryCache()
	}
	return &Client{
		http:  phttp.NewClient(phttp.WithTimeout(cfg.Timeout)),
		cache: store,
		clock: clock,
		log:   log,
		cfg:   cfg,
	}
}

type predictRequest struct {
	Features *models.SignalFeatures `json:"features"`
}

type predictResponse struct {
	Prediction models.MLPrediction `json:"prediction"`
}

// Predict scores one feature vector. Cached results are returned as-is;
// a fresh result is cached under the signal id.
func (c *Client) Predict(ctx context.Context, features *models.SignalFeatures) (*models.MLPrediction, error) {
	key := cache.GenerateKey("prediction", features.SignalID)

	var cached models.MLPrediction
	if err := c.cache.Get(ctx, key, &cached); err == nil && cached.SignalID != "" {
		return &cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var resp predictResponse
	err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    c.cfg.BaseURL + apiPrefix + "/predict",
		Body:   predictRequest{Features: features},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", features.SignalID, err)
	}

	if err := c.cache.Set(ctx, key, resp.Prediction, c.cfg.CacheTTL); err != nil {
		c.log.Debug("prediction cache write failed", logger.Error(err))
	}
	return &resp.Prediction, nil
}

// Train ships completed records to the scoring service. Records without
// features or without a settled outcome are skipped.
func (c *Client) Train(ctx context.Context, rows []*models.SignalRecord) error {
	payload := make([]map[string]any, 0, len(rows))
	for _, rec := range rows {
		if rec.Features == nil {
			continue
		}
		var outcome int
		switch rec.Outcome {
		case models.OutcomeWin:
			outcome = 1
		case models.OutcomeLoss:
			outcome = 0
		default:
			continue
		}
		row, err := featureMap(rec.Features)
		if err != nil {
			return fmt.Errorf("train row %s: %w", rec.ID, err)
		}
		row["outcome"] = outcome
		payload = append(payload, row)
	}
	if len(payload) == 0 {
		return fmt.Errorf("train: no completed rows with features")
	}

	return c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    c.cfg.BaseURL + apiPrefix + "/train/sqlite-data",
		Body:   payload,
	}, nil)
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Healthy probes the service, caching the verdict for the health TTL so
// an unreachable service costs one timeout per window, not per signal.
func (c *Client) Healthy(ctx context.Context) bool {
	now := c.clock.Now()

	c.mu.Lock()
	if now.Sub(c.checkedAt) < c.cfg.HealthTTL {
		healthy := c.healthy
		c.mu.Unlock()
		return healthy
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var resp healthResponse
	err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodGet,
		URL:    c.cfg.BaseURL + "/health",
	}, &resp)
	healthy := err == nil && resp.Status == "healthy"

	c.mu.Lock()
	c.healthy = healthy
	c.checkedAt = now
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("predictor health probe failed", logger.Error(err))
	}
	return healthy
}

// Stats fetches the model statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var stats map[string]any
	err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodGet,
		URL:    c.cfg.BaseURL + apiPrefix + "/stats",
	}, &stats)
	if err != nil {
		return nil, fmt.Errorf("predictor stats: %w", err)
	}
	return stats, nil
}

func featureMap(f *models.SignalFeatures) (map[string]any, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Package outcome labels emitted signals WIN or LOSS after a fixed
// evaluation horizon and aggregates win-rate statistics.
package outcome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/logger"
)

const (
	completedLimit = 500 // in-memory ring; the store keeps everything
	rollingWindow  = 20
)

// Config carries the tracker tunables.
type Config struct {
	EmitThreshold  float64       // minimum confidence to record
	EvaluationTime time.Duration // horizon before a record is labelled
}

// Tracker owns the pending and completed signal records. All mutation
// happens on the scheduler's outcome task.
type Tracker struct {
	store *datastore.Store
	sink  drepo.SignalStore
	clock drepo.Clock
	log   *logger.Logger
	cfg   Config

	mu        sync.RWMutex
	pending   map[string]*models.SignalRecord
	completed []*models.SignalRecord // oldest first
}

func New(store *datastore.Store, sink drepo.SignalStore, clock drepo.Clock, log *logger.Logger, cfg Config) *Tracker {
	return &Tracker{
		store:   store,
		sink:    sink,
		clock:   clock,
		log:     log,
		cfg:     cfg,
		pending: make(map[string]*models.SignalRecord),
	}
}

// Restore reloads pending records from the store after a restart so
// in-flight signals still get evaluated.
func (t *Tracker) Restore(ctx context.Context) error {
	rows, err := t.sink.PendingSignals(ctx)
	if err != nil {
		return fmt.Errorf("restore pending signals: %w", err)
	}
	t.mu.Lock()
	for _, r := range rows {
		if r.Outcome == models.OutcomePending {
			t.pending[r.ID] = r
		}
	}
	n := len(t.pending)
	t.mu.Unlock()

	t.log.Info("pending signals restored", logger.Int("count", n))
	return nil
}

// Record registers an emitted signal for outcome evaluation. Signals
// below the confidence threshold or without a direction are ignored.
func (t *Tracker) Record(ctx context.Context, sig models.SmartSignal, features *models.SignalFeatures) error {
	if sig.Confidence < t.cfg.EmitThreshold || sig.Direction == models.DirectionNeutral {
		return nil
	}
	rec := &models.SignalRecord{
		ID:           sig.ID,
		Symbol:       sig.Symbol,
		EntryType:    sig.EntryType,
		Direction:    sig.Direction,
		EntryPrice:   sig.Price,
		Confidence:   sig.Confidence,
		Timestamp:    sig.Timestamp,
		Outcome:      models.OutcomePending,
		Features:     features,
		MLPrediction: sig.MLPrediction,
	}

	t.mu.Lock()
	t.pending[rec.ID] = rec
	t.mu.Unlock()

	if err := t.sink.UpsertSignalFeatures(ctx, rec); err != nil {
		return fmt.Errorf("persist signal record: %w", err)
	}
	return nil
}

// EvaluateDue labels every pending record past the evaluation horizon
// using the most recent observed price. Each record is evaluated at most
// once and never moves back to pending.
func (t *Tracker) EvaluateDue(ctx context.Context) {
	now := t.clock.Now()

	t.mu.Lock()
	var due []*models.SignalRecord
	for _, rec := range t.pending {
		if now.Sub(rec.Timestamp) >= t.cfg.EvaluationTime {
			due = append(due, rec)
		}
	}
	t.mu.Unlock()

	for _, rec := range due {
		price, ok := t.store.LastPrice(rec.Symbol)
		if !ok || price <= 0 || rec.EntryPrice <= 0 {
			continue
		}
		pnl := (price - rec.EntryPrice) / rec.EntryPrice * 100
		if rec.Direction == models.DirectionShort {
			pnl = -pnl
		}
		rec.Outcome = labelOutcome(pnl)
		rec.ExitPrice = price
		rec.PnLPercent = pnl
		rec.EvaluatedAt = now

		t.mu.Lock()
		delete(t.pending, rec.ID)
		t.completed = append(t.completed, rec)
		if len(t.completed) > completedLimit {
			t.completed = t.completed[len(t.completed)-completedLimit:]
		}
		t.mu.Unlock()

		if err := t.sink.UpdateOutcome(ctx, rec.ID, rec.Outcome, rec.ExitPrice, rec.PnLPercent); err != nil {
			t.log.Error("outcome persist failed",
				logger.String("signal_id", rec.ID),
				logger.Error(err),
			)
		}
		t.log.Debug("signal evaluated",
			logger.String("symbol", rec.Symbol),
			logger.String("outcome", string(rec.Outcome)),
		)
	}
}

// labelOutcome decides WIN or LOSS from the realized pnl percent.
func labelOutcome(pnl float64) models.Outcome {
	switch {
	case pnl > 0.5:
		return models.OutcomeWin
	case pnl < -0.5:
		return models.OutcomeLoss
	case pnl >= 0:
		return models.OutcomeWin
	default:
		return models.OutcomeLoss
	}
}

// Report aggregates win-rate statistics overall, by entry type, by
// symbol and over the rolling window.
func (t *Tracker) Report() models.OutcomeReport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := models.OutcomeReport{
		Overall:     statsOf(t.completed),
		ByEntryType: make(map[models.EntryType]models.WinRateStats),
		BySymbol:    make(map[string]models.WinRateStats),
		Pending:     len(t.pending),
	}

	byEntry := make(map[models.EntryType][]*models.SignalRecord)
	bySymbol := make(map[string][]*models.SignalRecord)
	for _, rec := range t.completed {
		byEntry[rec.EntryType] = append(byEntry[rec.EntryType], rec)
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
	}
	for et, recs := range byEntry {
		report.ByEntryType[et] = statsOf(recs)
	}
	for sym, recs := range bySymbol {
		report.BySymbol[sym] = statsOf(recs)
	}

	if n := len(t.completed); n > rollingWindow {
		report.Rolling = statsOf(t.completed[n-rollingWindow:])
	} else {
		report.Rolling = report.Overall
	}
	return report
}

// RecentCompleted returns copies of the newest completed records,
// newest first.
func (t *Tracker) RecentCompleted(limit int) []models.SignalRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.completed)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]models.SignalRecord, 0, n)
	for i := len(t.completed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *t.completed[i])
	}
	return out
}

// PendingCount reports how many records await evaluation.
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

func statsOf(recs []*models.SignalRecord) models.WinRateStats {
	var s models.WinRateStats
	var winSum, lossSum float64
	for _, rec := range recs {
		s.TotalSignals++
		switch rec.Outcome {
		case models.OutcomeWin:
			s.Wins++
			winSum += rec.PnLPercent
		case models.OutcomeLoss:
			s.Losses++
			lossSum += rec.PnLPercent
		}
	}
	if s.TotalSignals > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalSignals) * 100
	}
	if s.Wins > 0 {
		s.AvgWinPct = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPct = lossSum / float64(s.Losses)
	}
	if lossSum != 0 {
		s.ProfitFactor = winSum / -lossSum
	}
	return s
}

package outcome

import (
	"context"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	"PulseScan/pkg/logger"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeSink struct {
	pending  []*models.SignalRecord
	upserts  int
	outcomes map[string]models.Outcome
}

func newFakeSink() *fakeSink {
	return &fakeSink{outcomes: make(map[string]models.Outcome)}
}

func (s *fakeSink) Init(context.Context) error { return nil }
func (s *fakeSink) SaveOpportunity(context.Context, string, string, string, float64, models.Direction, float64, bool) error {
	return nil
}
func (s *fakeSink) SaveAlert(context.Context, string, string, string, string) error { return nil }
func (s *fakeSink) OpenSession(context.Context) (string, error)                     { return "session", nil }
func (s *fakeSink) CloseSession(context.Context, string, int, int) error            { return nil }

func (s *fakeSink) UpsertSignalFeatures(_ context.Context, rec *models.SignalRecord) error {
	s.upserts++
	return nil
}

func (s *fakeSink) UpdateOutcome(_ context.Context, signalID string, outcome models.Outcome, _, _ float64) error {
	s.outcomes[signalID] = outcome
	return nil
}

func (s *fakeSink) PendingSignals(context.Context) ([]*models.SignalRecord, error) {
	return s.pending, nil
}

func (s *fakeSink) CompletedSignals(context.Context, int) ([]*models.SignalRecord, error) {
	return nil, nil
}
func (s *fakeSink) ExportCSV(context.Context, io.Writer) error             { return nil }
func (s *fakeSink) SaveModelMetrics(context.Context, map[string]any) error { return nil }
func (s *fakeSink) Health(context.Context) error                           { return nil }
func (s *fakeSink) Close() error                                           { return nil }

func newTracker(t *testing.T, clock *fakeClock, store *datastore.Store, sink *fakeSink) *Tracker {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(store, sink, clock, log, Config{
		EmitThreshold:  60,
		EvaluationTime: 15 * time.Minute,
	})
}

func signal(id, symbol string, dir models.Direction, price, confidence float64, ts time.Time) models.SmartSignal {
	return models.SmartSignal{
		ID:         id,
		Symbol:     symbol,
		Direction:  dir,
		Confidence: confidence,
		EntryType:  models.EntryMomentum,
		RiskLevel:  models.RiskMedium,
		Price:      price,
		Timestamp:  ts,
	}
}

func setPrice(clock *fakeClock, store *datastore.Store, symbol string, price float64) {
	store.Update([]models.Ticker{{
		Symbol:    symbol,
		LastPrice: price,
		EventTime: clock.Now(),
	}})
}

func TestRecordThresholds(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	sink := newFakeSink()
	tr := newTracker(t, clock, store, sink)
	ctx := context.Background()

	if err := tr.Record(ctx, signal("a", "AAAUSDT", models.DirectionLong, 100, 59.9, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Record(ctx, signal("b", "AAAUSDT", models.DirectionNeutral, 100, 90, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if tr.PendingCount() != 0 || sink.upserts != 0 {
		t.Fatalf("low-confidence and neutral signals must be ignored")
	}

	if err := tr.Record(ctx, signal("c", "AAAUSDT", models.DirectionLong, 100, 60, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if tr.PendingCount() != 1 || sink.upserts != 1 {
		t.Fatalf("threshold signal must be recorded and persisted")
	}
}

func TestEvaluateLongWin(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	sink := newFakeSink()
	tr := newTracker(t, clock, store, sink)
	ctx := context.Background()

	setPrice(clock, store, "CCCUSDT", 100)
	if err := tr.Record(ctx, signal("s1", "CCCUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	clock.Advance(16 * time.Minute)
	setPrice(clock, store, "CCCUSDT", 102)
	tr.EvaluateDue(ctx)

	if tr.PendingCount() != 0 {
		t.Fatalf("record still pending")
	}
	recent := tr.RecentCompleted(10)
	if len(recent) != 1 {
		t.Fatalf("completed = %d, want 1", len(recent))
	}
	rec := recent[0]
	if rec.Outcome != models.OutcomeWin {
		t.Fatalf("outcome = %v, want WIN", rec.Outcome)
	}
	if rec.ExitPrice != 102 || math.Abs(rec.PnLPercent-2) > 1e-9 {
		t.Fatalf("exit/pnl = %v/%v, want 102/2", rec.ExitPrice, rec.PnLPercent)
	}
	if sink.outcomes["s1"] != models.OutcomeWin {
		t.Fatalf("outcome not persisted")
	}
}

func TestEvaluateShortNegatesPnL(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	tr := newTracker(t, clock, store, newFakeSink())
	ctx := context.Background()

	setPrice(clock, store, "AAAUSDT", 100)
	if err := tr.Record(ctx, signal("s1", "AAAUSDT", models.DirectionShort, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	clock.Advance(15 * time.Minute)
	setPrice(clock, store, "AAAUSDT", 98)
	tr.EvaluateDue(ctx)

	recent := tr.RecentCompleted(1)
	if len(recent) != 1 {
		t.Fatalf("completed = %d, want 1", len(recent))
	}
	if recent[0].Outcome != models.OutcomeWin || math.Abs(recent[0].PnLPercent-2) > 1e-9 {
		t.Fatalf("short on a 2%% drop must win, got %v pnl %v", recent[0].Outcome, recent[0].PnLPercent)
	}
}

func TestEvaluateFlatBand(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	tr := newTracker(t, clock, store, newFakeSink())
	ctx := context.Background()

	setPrice(clock, store, "AAAUSDT", 100)
	setPrice(clock, store, "BBBUSDT", 100)
	if err := tr.Record(ctx, signal("flatwin", "AAAUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Record(ctx, signal("flatloss", "BBBUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	clock.Advance(15 * time.Minute)
	setPrice(clock, store, "AAAUSDT", 100.3)
	setPrice(clock, store, "BBBUSDT", 99.7)
	tr.EvaluateDue(ctx)

	for _, rec := range tr.RecentCompleted(2) {
		switch rec.ID {
		case "flatwin":
			if rec.Outcome != models.OutcomeWin {
				t.Fatalf("+0.3%% inside the band must win, got %v", rec.Outcome)
			}
		case "flatloss":
			if rec.Outcome != models.OutcomeLoss {
				t.Fatalf("-0.3%% inside the band must lose, got %v", rec.Outcome)
			}
		}
	}
}

func TestEvaluateRespectsHorizon(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	tr := newTracker(t, clock, store, newFakeSink())
	ctx := context.Background()

	setPrice(clock, store, "AAAUSDT", 100)
	if err := tr.Record(ctx, signal("s1", "AAAUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	clock.Advance(14 * time.Minute)
	tr.EvaluateDue(ctx)
	if tr.PendingCount() != 1 {
		t.Fatalf("record evaluated before the horizon")
	}
}

func TestCompletedRingBounded(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	tr := newTracker(t, clock, store, newFakeSink())
	ctx := context.Background()

	setPrice(clock, store, "AAAUSDT", 100)
	for i := 0; i < completedLimit+10; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := tr.Record(ctx, signal(id, "AAAUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	clock.Advance(16 * time.Minute)
	setPrice(clock, store, "AAAUSDT", 102)
	tr.EvaluateDue(ctx)

	report := tr.Report()
	if report.Overall.TotalSignals != completedLimit {
		t.Fatalf("completed = %d, want bounded at %d", report.Overall.TotalSignals, completedLimit)
	}
	if report.Pending != 0 {
		t.Fatalf("pending = %d, want 0", report.Pending)
	}
}

func TestReportAggregates(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	tr := newTracker(t, clock, store, newFakeSink())
	ctx := context.Background()

	setPrice(clock, store, "WINUSDT", 100)
	setPrice(clock, store, "LOSSUSDT", 100)
	if err := tr.Record(ctx, signal("w", "WINUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Record(ctx, signal("l", "LOSSUSDT", models.DirectionLong, 100, 70, clock.Now()), nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	clock.Advance(16 * time.Minute)
	setPrice(clock, store, "WINUSDT", 104)
	setPrice(clock, store, "LOSSUSDT", 98)
	tr.EvaluateDue(ctx)

	report := tr.Report()
	if report.Overall.TotalSignals != 2 || report.Overall.Wins != 1 || report.Overall.Losses != 1 {
		t.Fatalf("overall = %+v", report.Overall)
	}
	if report.Overall.WinRate != 50 {
		t.Fatalf("winRate = %v, want 50", report.Overall.WinRate)
	}
	if math.Abs(report.Overall.AvgWinPct-4) > 1e-9 {
		t.Fatalf("avgWin = %v, want 4", report.Overall.AvgWinPct)
	}
	if math.Abs(report.Overall.AvgLossPct+2) > 1e-9 {
		t.Fatalf("avgLoss = %v, want -2", report.Overall.AvgLossPct)
	}
	if math.Abs(report.Overall.ProfitFactor-2) > 1e-9 {
		t.Fatalf("profitFactor = %v, want 2", report.Overall.ProfitFactor)
	}
	if report.BySymbol["WINUSDT"].Wins != 1 || report.BySymbol["LOSSUSDT"].Losses != 1 {
		t.Fatalf("bySymbol = %+v", report.BySymbol)
	}
	if report.ByEntryType[models.EntryMomentum].TotalSignals != 2 {
		t.Fatalf("byEntryType = %+v", report.ByEntryType)
	}
}

func TestRestorePending(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	sink := newFakeSink()
	sink.pending = []*models.SignalRecord{
		{ID: "p1", Symbol: "AAAUSDT", Direction: models.DirectionLong, EntryPrice: 100, Outcome: models.OutcomePending, Timestamp: clock.Now()},
		{ID: "done", Symbol: "AAAUSDT", Direction: models.DirectionLong, EntryPrice: 100, Outcome: models.OutcomeWin, Timestamp: clock.Now()},
	}
	tr := newTracker(t, clock, store, sink)

	if err := tr.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if tr.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 (completed rows excluded)", tr.PendingCount())
	}

	// restored records flow through the normal evaluation path
	clock.Advance(16 * time.Minute)
	setPrice(clock, store, "AAAUSDT", 103)
	tr.EvaluateDue(context.Background())
	if tr.PendingCount() != 0 {
		t.Fatalf("restored record was not evaluated")
	}
}

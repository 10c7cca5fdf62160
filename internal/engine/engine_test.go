package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/detector"
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

type fakeREST struct {
	funding []models.FundingRate
	oi      map[string]float64
}

func (r *fakeREST) GetFundingRates(context.Context) ([]models.FundingRate, error) {
	return r.funding, nil
}

func (r *fakeREST) GetOpenInterest(_ context.Context, symbol string) (models.OpenInterest, error) {
	v, ok := r.oi[symbol]
	if !ok {
		return models.OpenInterest{}, fmt.Errorf("no oi for %s", symbol)
	}
	return models.OpenInterest{Symbol: symbol, Value: v}, nil
}

func (r *fakeREST) GetKlines(_ context.Context, symbol, interval string, _ int) ([]models.Candle, error) {
	return nil, fmt.Errorf("no klines for %s %s", symbol, interval)
}

func (r *fakeREST) GetSymbolRSI(_ context.Context, symbol, interval string) (float64, error) {
	return 0, fmt.Errorf("no rsi for %s %s", symbol, interval)
}

type fakePredictor struct {
	winProbability float64
	healthy        bool
	err            error
	calls          int
}

func (p *fakePredictor) Predict(_ context.Context, f *models.SignalFeatures) (*models.MLPrediction, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &models.MLPrediction{
		SignalID:       f.SignalID,
		WinProbability: p.winProbability,
		QualityTier:    models.TierHigh,
		Confidence:     0.9,
		ModelVersion:   "test-1",
	}, nil
}

func (p *fakePredictor) Train(context.Context, []*models.SignalRecord) error { return nil }
func (p *fakePredictor) Healthy(context.Context) bool                        { return p.healthy }
func (p *fakePredictor) Stats(context.Context) (map[string]any, error)       { return nil, nil }

type testRig struct {
	clock     *fakeClock
	store     *datastore.Store
	rest      *fakeREST
	det       Detectors
	predictor *fakePredictor
	engine    *Engine
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	rest := &fakeREST{oi: map[string]float64{}}

	det := Detectors{
		Volume:      detector.NewVolume(store, clock, 3, 1_000_000),
		Velocity:    detector.NewVelocity(store, clock, 0.5, 0.1),
		Funding:     detector.NewFunding(store, rest, clock),
		OI:          detector.NewOpenInterest(store, rest, clock),
		MTF:         detector.NewMultiTimeframe(store, rest, clock),
		Pattern:     detector.NewPattern(store, rest, clock),
		Entry:       detector.NewEntryTiming(store, rest, clock),
		Whale:       detector.NewWhale(store, clock),
		Correlation: detector.NewCorrelation(store, clock),
	}

	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	predictor := &fakePredictor{winProbability: 0.8, healthy: true}
	eng := New(store, clock, det, predictor, log, nil, Config{
		EmitThreshold: 60,
		WeightML:      0.6,
		WeightRule:    0.4,
	})
	return &testRig{clock: clock, store: store, rest: rest, det: det, predictor: predictor, engine: eng}
}

func (r *testRig) seed(symbol string, changePct float64) {
	tk := models.Ticker{
		Symbol:         symbol,
		LastPrice:      100,
		OpenPrice:      100 / (1 + changePct/100),
		HighPrice:      101,
		LowPrice:       95,
		PriceChangePct: changePct,
		QuoteVolume:    5_000_000,
		EventTime:      r.clock.Now(),
	}
	r.store.Update([]models.Ticker{tk})
}

func TestCalculateConfluence(t *testing.T) {
	comps := []models.SignalComponent{
		{Name: componentPriceMovement, Direction: models.ComponentBullish, Strength: 60, Weight: 20},
		{Name: componentVolume, Direction: models.ComponentBullish, Strength: 70, Weight: 15},
		{Name: componentVelocity, Direction: models.ComponentBullish, Strength: 55, Weight: 20},
		{Name: componentFunding, Direction: models.ComponentNeutral, Strength: 30, Weight: 15},
		{Name: componentOpenInterest, Direction: models.ComponentBullish, Strength: 50, Weight: 10},
		{Name: componentMultiTF, Direction: models.ComponentBullish, Strength: 80, Weight: 20},
	}
	confluence, confidence, direction := calculateConfluence(comps)
	if math.Abs(confluence-53.5) > 1e-9 {
		t.Fatalf("confluence = %v, want 53.5", confluence)
	}
	want := 53.5 + 5.0/6.0*20
	if math.Abs(confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", confidence, want)
	}
	if direction != models.DirectionLong {
		t.Fatalf("direction = %v, want LONG", direction)
	}
}

func TestCalculateConfluenceNeutralBand(t *testing.T) {
	comps := []models.SignalComponent{
		{Name: componentPriceMovement, Direction: models.ComponentBullish, Strength: 40, Weight: 20},
	}
	// net = 8, inside the +-10 neutral band
	confluence, _, direction := calculateConfluence(comps)
	if math.Abs(confluence-40) > 1e-9 {
		t.Fatalf("confluence = %v, want 40", confluence)
	}
	if direction != models.DirectionNeutral {
		t.Fatalf("direction = %v, want NEUTRAL", direction)
	}
}

func TestBlendConfidence(t *testing.T) {
	// agreement bonus
	if got := BlendConfidence(80, 70, 0.6, 0.4); math.Abs(got-83.6) > 1e-9 {
		t.Fatalf("blend(80,70) = %v, want 83.6", got)
	}
	// disagreement penalty
	if got, want := BlendConfidence(95, 40, 0.6, 0.4), (95*0.6+40*0.4)*0.9; math.Abs(got-want) > 1e-9 {
		t.Fatalf("blend(95,40) = %v, want %v", got, want)
	}
	// clamp
	if got := BlendConfidence(100, 100, 0.6, 0.4); got != 100 {
		t.Fatalf("blend(100,100) = %v, want 100", got)
	}
}

func TestRiskLevel(t *testing.T) {
	strong := func(n int) []models.SignalComponent {
		comps := make([]models.SignalComponent, 6)
		for i := range comps {
			comps[i] = models.SignalComponent{Strength: 40}
		}
		for i := 0; i < n; i++ {
			comps[i].Strength = 60
		}
		return comps
	}
	if got := riskLevel(75, strong(4)); got != models.RiskLow {
		t.Fatalf("risk = %v, want LOW", got)
	}
	if got := riskLevel(75, strong(3)); got != models.RiskMedium {
		t.Fatalf("risk = %v, want MEDIUM", got)
	}
	if got := riskLevel(55, strong(3)); got != models.RiskMedium {
		t.Fatalf("risk = %v, want MEDIUM", got)
	}
	if got := riskLevel(55, strong(2)); got != models.RiskHigh {
		t.Fatalf("risk = %v, want HIGH", got)
	}
	if got := riskLevel(45, strong(6)); got != models.RiskHigh {
		t.Fatalf("risk = %v, want HIGH", got)
	}
}

func TestEntryTypePriority(t *testing.T) {
	rig := newTestRig(t)
	rig.seed("AAAUSDT", 5)
	st, _ := rig.store.Get("AAAUSDT")

	mk := func(name string, strength float64) models.SignalComponent {
		return models.SignalComponent{Name: name, Direction: models.ComponentBullish, Strength: strength, Weight: 20}
	}

	// funding strength above 70 wins over everything else
	comps := []models.SignalComponent{mk(componentFunding, 75), mk(componentVolume, 80), mk(componentVelocity, 80), mk(componentMultiTF, 80)}
	if got := rig.engine.entryType(st, comps); got != models.EntryReversal {
		t.Fatalf("entry = %v, want REVERSAL", got)
	}

	// strong volume with quiet velocity reads as an early entry
	comps = []models.SignalComponent{mk(componentVolume, 70), mk(componentVelocity, 30)}
	if got := rig.engine.entryType(st, comps); got != models.EntryEarly {
		t.Fatalf("entry = %v, want EARLY", got)
	}

	// fast price with timeframe agreement is a breakout
	comps = []models.SignalComponent{mk(componentVelocity, 80), mk(componentMultiTF, 70)}
	if got := rig.engine.entryType(st, comps); got != models.EntryBreakout {
		t.Fatalf("entry = %v, want BREAKOUT", got)
	}

	comps = []models.SignalComponent{mk(componentPriceMovement, 50)}
	if got := rig.engine.entryType(st, comps); got != models.EntryMomentum {
		t.Fatalf("entry = %v, want MOMENTUM", got)
	}
}

func TestAnalyzeEmitsAndEnhances(t *testing.T) {
	rig := newTestRig(t)
	rig.seed("AAAUSDT", 20)
	rig.clock.Advance(time.Minute)
	rig.store.Update([]models.Ticker{{
		Symbol:         "AAAUSDT",
		LastPrice:      102,
		OpenPrice:      85,
		HighPrice:      103,
		LowPrice:       95,
		PriceChangePct: 20,
		QuoteVolume:    5_000_000,
		EventTime:      rig.clock.Now(),
	}})

	st, _ := rig.store.Get("AAAUSDT")
	sig, emitted := rig.engine.Analyze(context.Background(), st)
	if !emitted {
		t.Fatalf("expected emission, got confidence %v direction %v", sig.Confidence, sig.Direction)
	}
	if sig.Direction != models.DirectionLong {
		t.Fatalf("direction = %v, want LONG", sig.Direction)
	}
	if sig.ID == "" {
		t.Fatalf("signal must carry an id")
	}
	if sig.MLPrediction == nil || sig.CombinedConfidence == nil {
		t.Fatalf("expected ML enhancement")
	}
	want := BlendConfidence(80, sig.Confidence, 0.6, 0.4)
	if math.Abs(*sig.CombinedConfidence-want) > 1e-9 {
		t.Fatalf("combined = %v, want %v", *sig.CombinedConfidence, want)
	}
	if sig.QualityTier != models.TierHigh {
		t.Fatalf("tier = %v, want HIGH", sig.QualityTier)
	}

	got, ok := rig.engine.Latest("AAAUSDT")
	if !ok || got.ID != sig.ID {
		t.Fatalf("latest signal not retained")
	}
}

func TestAnalyzeDegradesWithoutPredictor(t *testing.T) {
	rig := newTestRig(t)
	rig.predictor.healthy = false
	rig.seed("AAAUSDT", 20)
	rig.clock.Advance(time.Minute)
	rig.store.Update([]models.Ticker{{
		Symbol:         "AAAUSDT",
		LastPrice:      102,
		OpenPrice:      85,
		PriceChangePct: 20,
		QuoteVolume:    5_000_000,
		EventTime:      rig.clock.Now(),
	}})

	st, _ := rig.store.Get("AAAUSDT")
	sig, emitted := rig.engine.Analyze(context.Background(), st)
	if !emitted {
		t.Fatalf("signal must emit without the predictor")
	}
	if sig.MLPrediction != nil || sig.CombinedConfidence != nil {
		t.Fatalf("unhealthy predictor must not enhance")
	}
	if rig.predictor.calls != 0 {
		t.Fatalf("unhealthy predictor must not be called")
	}
}

func TestReversalNeedsTwoTriggers(t *testing.T) {
	rig := newTestRig(t)
	rig.seed("AAAUSDT", 8)

	// extreme funding alone is not enough
	rig.rest.funding = []models.FundingRate{{Symbol: "AAAUSDT", Rate: 0.2}}
	if err := rig.det.Funding.Update(context.Background()); err != nil {
		t.Fatalf("funding update: %v", err)
	}
	st, _ := rig.store.Get("AAAUSDT")
	if _, ok := rig.engine.reversalFor(st); ok {
		t.Fatalf("single trigger must not fire a reversal")
	}

	// add an OI divergence: OI dropping while price rises
	rig.rest.oi["AAAUSDT"] = 100
	if err := rig.det.OI.Update(context.Background()); err != nil {
		t.Fatalf("oi update: %v", err)
	}
	rig.rest.oi["AAAUSDT"] = 95
	if err := rig.det.OI.Update(context.Background()); err != nil {
		t.Fatalf("oi update: %v", err)
	}

	rev, ok := rig.engine.reversalFor(st)
	if !ok {
		t.Fatalf("two triggers must fire a reversal")
	}
	if rev.Direction != models.DirectionShort {
		t.Fatalf("direction = %v, want SHORT from the funding trigger", rev.Direction)
	}
	if len(rev.Triggers) != 2 {
		t.Fatalf("triggers = %v, want 2", rev.Triggers)
	}
	if rev.Confidence != 40 {
		t.Fatalf("confidence = %v, want 40", rev.Confidence)
	}
}

func TestQueriesFilterRetainedSignals(t *testing.T) {
	rig := newTestRig(t)
	for i, changePct := range []float64{20, 15, -18, 2} {
		sym := fmt.Sprintf("S%dUSDT", i)
		rig.seed(sym, changePct)
	}
	rig.clock.Advance(time.Minute)
	for i, last := range []float64{102, 101.5, 98, 100.01} {
		sym := fmt.Sprintf("S%dUSDT", i)
		tk, _ := rig.store.Ticker(sym)
		tk.LastPrice = last
		tk.EventTime = rig.clock.Now()
		rig.store.Update([]models.Ticker{tk})
	}

	emitted, _ := rig.engine.AnalyzeAll(context.Background())
	if len(emitted) == 0 {
		t.Fatalf("expected emissions")
	}

	top := rig.engine.TopSignals(2, "")
	if len(top) != 2 {
		t.Fatalf("top = %d, want 2", len(top))
	}
	if top[0].Confidence < top[1].Confidence {
		t.Fatalf("top signals not sorted")
	}
	for _, s := range rig.engine.TopSignals(0, models.DirectionShort) {
		if s.Direction != models.DirectionShort {
			t.Fatalf("direction filter leaked %v", s.Direction)
		}
	}
	for _, s := range rig.engine.LowRiskSetups() {
		if s.RiskLevel != models.RiskLow {
			t.Fatalf("low-risk filter leaked %v", s.RiskLevel)
		}
	}
}

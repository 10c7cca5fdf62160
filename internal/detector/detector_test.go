package detector

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
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
	klines  map[string][]models.Candle // keyed by symbol+interval
	rsi     map[string]float64
	oiCalls int
	fundErr error
}

func (r *fakeREST) GetFundingRates(context.Context) ([]models.FundingRate, error) {
	if r.fundErr != nil {
		return nil, r.fundErr
	}
	return r.funding, nil
}

func (r *fakeREST) GetOpenInterest(_ context.Context, symbol string) (models.OpenInterest, error) {
	r.oiCalls++
	v, ok := r.oi[symbol]
	if !ok {
		return models.OpenInterest{}, fmt.Errorf("no oi for %s", symbol)
	}
	return models.OpenInterest{Symbol: symbol, Value: v}, nil
}

func (r *fakeREST) GetKlines(_ context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	c, ok := r.klines[symbol+interval]
	if !ok {
		return nil, fmt.Errorf("no klines for %s %s", symbol, interval)
	}
	if len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

func (r *fakeREST) GetSymbolRSI(_ context.Context, symbol, interval string) (float64, error) {
	v, ok := r.rsi[symbol+interval]
	if !ok {
		return 0, fmt.Errorf("no rsi for %s %s", symbol, interval)
	}
	return v, nil
}

func seedStore(clock *fakeClock, tickers ...models.Ticker) *datastore.Store {
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	for i := range tickers {
		tickers[i].EventTime = clock.Now()
	}
	store.Update(tickers)
	return store
}

func ticker(symbol string, lastPrice, changePct, quoteVolume float64) models.Ticker {
	return models.Ticker{
		Symbol:         symbol,
		LastPrice:      lastPrice,
		OpenPrice:      lastPrice / (1 + changePct/100),
		HighPrice:      lastPrice * 1.01,
		LowPrice:       lastPrice * 0.95,
		PriceChangePct: changePct,
		QuoteVolume:    quoteVolume,
	}
}

func TestVolatilityThresholdGate(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock,
		ticker("AAAUSDT", 10, 9.9, 5_000_000),
		ticker("BBBUSDT", 10, 10, 5_000_000),
		ticker("CCCUSDT", 10, -12, 5_000_000),
		ticker("DDDUSDT", 10, 26, 5_000_000),
	)
	d := NewVolatility(store, clock, 10, 25)

	alerts := d.Detect()
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	if alerts[0].Symbol != "DDDUSDT" || !alerts[0].IsCritical {
		t.Fatalf("expected DDDUSDT critical first, got %+v", alerts[0])
	}
	for _, a := range alerts[1:] {
		if a.IsCritical {
			t.Fatalf("%s should not be critical", a.Symbol)
		}
	}
	set := d.CriticalSet()
	if len(set) != 1 {
		t.Fatalf("critical set size = %d, want 1", len(set))
	}
	if _, ok := set["DDDUSDT"]; !ok {
		t.Fatalf("DDDUSDT missing from critical set")
	}
}

func TestVolumeSpikeMultiplier(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock, ticker("AAAUSDT", 10, 1, 2_000_000))
	d := NewVolume(store, clock, 3, 1_000_000)

	// 50 snapshots climbing 100/step, then 10 climbing 400/step:
	// recent rate 400, average rate 100, multiplier 4.
	vol := 1_000_000.0
	for i := 0; i < 50; i++ {
		vol += 100
		d.UpdateTracking([]models.Ticker{{Symbol: "AAAUSDT", QuoteVolume: vol}})
	}
	for i := 0; i < 10; i++ {
		vol += 400
		d.UpdateTracking([]models.Ticker{{Symbol: "AAAUSDT", QuoteVolume: vol}})
	}

	mult, ok := d.MultiplierFor("AAAUSDT")
	if !ok {
		t.Fatalf("expected multiplier")
	}
	if math.Abs(mult-4) > 1e-9 {
		t.Fatalf("multiplier = %v, want 4", mult)
	}

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].RecentRate != 400 || alerts[0].AverageRate != 100 {
		t.Fatalf("rates = %v/%v, want 400/100", alerts[0].RecentRate, alerts[0].AverageRate)
	}
}

func TestVolumeQuoteVolumeFloorIsExclusive(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock, ticker("AAAUSDT", 10, 1, 1_000_000))
	d := NewVolume(store, clock, 3, 1_000_000)

	vol := 1_000_000.0
	for i := 0; i < 50; i++ {
		vol += 100
		d.UpdateTracking([]models.Ticker{{Symbol: "AAAUSDT", QuoteVolume: vol}})
	}
	for i := 0; i < 10; i++ {
		vol += 400
		d.UpdateTracking([]models.Ticker{{Symbol: "AAAUSDT", QuoteVolume: vol}})
	}
	if alerts := d.Detect(); len(alerts) != 0 {
		t.Fatalf("volume exactly at the floor must not alert, got %d", len(alerts))
	}
}

func TestVelocityNeedsTwoPoints(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock, ticker("AAAUSDT", 100, 1, 5_000_000))
	d := NewVelocity(store, clock, 0.5, 0.1)

	if alerts := d.Detect(); len(alerts) != 0 {
		t.Fatalf("one price point must not produce velocity, got %d alerts", len(alerts))
	}

	clock.Advance(time.Minute)
	store.Update([]models.Ticker{func() models.Ticker {
		tk := ticker("AAAUSDT", 101, 2, 5_000_000)
		tk.EventTime = clock.Now()
		return tk
	}()})

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if math.Abs(alerts[0].Velocity-1) > 1e-9 {
		t.Fatalf("velocity = %v, want 1 %%/min", alerts[0].Velocity)
	}
	if alerts[0].Direction != models.DirectionLong {
		t.Fatalf("direction = %v, want LONG", alerts[0].Direction)
	}
}

func TestRangePositions(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock,
		models.Ticker{Symbol: "HIGHUSDT", OpenPrice: 100, HighPrice: 120, LowPrice: 100, LastPrice: 117, PriceChangePct: 17},
		models.Ticker{Symbol: "LOWUSDT", OpenPrice: 100, HighPrice: 120, LowPrice: 100, LastPrice: 103, PriceChangePct: 3},
		models.Ticker{Symbol: "BRKUSDT", OpenPrice: 100, HighPrice: 120, LowPrice: 100, LastPrice: 119.99, PriceChangePct: 20},
		models.Ticker{Symbol: "MIDUSDT", OpenPrice: 100, HighPrice: 120, LowPrice: 100, LastPrice: 110, PriceChangePct: 10},
		models.Ticker{Symbol: "NARROWUSDT", OpenPrice: 100, HighPrice: 105, LowPrice: 100, LastPrice: 104, PriceChangePct: 4},
	)
	d := NewRange(store, clock, 15)

	alerts := d.Detect()
	if len(alerts) != 4 {
		t.Fatalf("expected 4 alerts, got %d", len(alerts))
	}
	want := map[string]models.RangePosition{
		"HIGHUSDT": models.RangeNearHigh,
		"LOWUSDT":  models.RangeNearLow,
		"BRKUSDT":  models.RangeBreaking,
		"MIDUSDT":  models.RangeMiddle,
	}
	for _, a := range alerts {
		if a.Position != want[a.Symbol] {
			t.Fatalf("%s position = %v, want %v", a.Symbol, a.Position, want[a.Symbol])
		}
	}
}

func TestFundingClassification(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock,
		ticker("EXPUSDT", 10, 1, 5_000_000),
		ticker("EXNUSDT", 10, -1, 5_000_000),
		ticker("LSQUSDT", 10, -6, 5_000_000),
		ticker("SSQUSDT", 10, 6, 5_000_000),
		ticker("NEUUSDT", 10, 0, 5_000_000),
	)
	rest := &fakeREST{funding: []models.FundingRate{
		{Symbol: "EXPUSDT", Rate: 0.15},
		{Symbol: "EXNUSDT", Rate: -0.12},
		{Symbol: "LSQUSDT", Rate: -0.06},
		{Symbol: "SSQUSDT", Rate: 0.06},
		{Symbol: "NEUUSDT", Rate: 0.01},
	}}
	d := NewFunding(store, rest, clock)
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}

	alerts := d.Detect()
	got := map[string]models.FundingSignal{}
	for _, a := range alerts {
		got[a.Symbol] = a.Signal
	}
	want := map[string]models.FundingSignal{
		"EXPUSDT": models.FundingExtremePositive,
		"EXNUSDT": models.FundingExtremeNegative,
		"LSQUSDT": models.FundingLongSqueeze,
		"SSQUSDT": models.FundingShortSqueeze,
	}
	if len(got) != len(want) {
		t.Fatalf("alerts = %v, want %v", got, want)
	}
	for sym, sig := range want {
		if got[sym] != sig {
			t.Fatalf("%s = %v, want %v", sym, got[sym], sig)
		}
	}
}

func TestFundingUpdateKeepsCacheOnError(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock, ticker("EXPUSDT", 10, 1, 5_000_000))
	rest := &fakeREST{funding: []models.FundingRate{{Symbol: "EXPUSDT", Rate: 0.2}}}
	d := NewFunding(store, rest, clock)
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}

	rest.fundErr = fmt.Errorf("rest down")
	if err := d.Update(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := d.RateFor("EXPUSDT"); !ok {
		t.Fatalf("cache must survive a failed refresh")
	}
}

func TestOpenInterestClassification(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock,
		ticker("UPUSDT", 10, 3, 9_000_000),
		ticker("DNUSDT", 10, -3, 8_000_000),
		ticker("FLATUSDT", 10, 0, 7_000_000),
	)
	rest := &fakeREST{oi: map[string]float64{"UPUSDT": 100, "DNUSDT": 100, "FLATUSDT": 100}}
	d := NewOpenInterest(store, rest, clock)

	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	rest.oi["UPUSDT"] = 105
	rest.oi["DNUSDT"] = 104
	rest.oi["FLATUSDT"] = 95
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}

	alerts := d.Detect()
	got := map[string]models.OISignal{}
	for _, a := range alerts {
		got[a.Symbol] = a.Signal
	}
	if got["UPUSDT"] != models.OIStrongTrend {
		t.Fatalf("UPUSDT = %v, want STRONG_TREND", got["UPUSDT"])
	}
	if got["DNUSDT"] != models.OIBuildingShorts {
		t.Fatalf("DNUSDT = %v, want BUILDING_SHORTS", got["DNUSDT"])
	}
	if got["FLATUSDT"] != models.OIClosingPositions {
		t.Fatalf("FLATUSDT = %v, want CLOSING_POSITIONS", got["FLATUSDT"])
	}
}

func TestOpenInterestBelowThresholdSilent(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock, ticker("UPUSDT", 10, 3, 9_000_000))
	rest := &fakeREST{oi: map[string]float64{"UPUSDT": 100}}
	d := NewOpenInterest(store, rest, clock)

	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	rest.oi["UPUSDT"] = 101.9
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if alerts := d.Detect(); len(alerts) != 0 {
		t.Fatalf("1.9%% OI change must not alert, got %d", len(alerts))
	}
}

func TestMultiTimeframeAlignment(t *testing.T) {
	cases := []struct {
		name string
		st   mtfState
		want models.MTFAlignment
	}{
		{"strong bullish", mtfState{change15m: 1, change1h: 2.5, change4h: 3}, models.AlignStrongBullish},
		{"bullish", mtfState{change15m: 0.5, change1h: 1, change4h: 1.5}, models.AlignBullish},
		{"strong bearish", mtfState{change15m: -1, change1h: -2.5, change4h: -3}, models.AlignStrongBearish},
		{"bearish", mtfState{change15m: -0.5, change1h: -1, change4h: -1.5}, models.AlignBearish},
		{"mixed", mtfState{change15m: 1, change1h: -1, change4h: 1}, models.AlignMixed},
	}
	for _, tc := range cases {
		if got := classifyAlignment(tc.st); got != tc.want {
			t.Fatalf("%s: alignment = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMultiTimeframeDivergence(t *testing.T) {
	if got := divergenceOf(mtfState{change15m: 0.5, change4h: -2.5}); got != models.DivergenceBullish {
		t.Fatalf("divergence = %v, want BULLISH", got)
	}
	if got := divergenceOf(mtfState{change15m: -0.5, change4h: 2.5}); got != models.DivergenceBearish {
		t.Fatalf("divergence = %v, want BEARISH", got)
	}
	if got := divergenceOf(mtfState{change15m: 0.5, change4h: -1.5}); got != models.DivergenceNone {
		t.Fatalf("divergence = %v, want NONE", got)
	}
}

func TestMultiTimeframeRotation(t *testing.T) {
	clock := newFakeClock()
	var tickers []models.Ticker
	rest := &fakeREST{klines: map[string][]models.Candle{}, rsi: map[string]float64{}}
	for i := 0; i < 8; i++ {
		sym := fmt.Sprintf("S%02dUSDT", i)
		tickers = append(tickers, ticker(sym, 10, 1, float64(10_000_000-i*1000)))
		candles := []models.Candle{
			{Open: 100, Close: 101},
			{Open: 101, Close: 102},
		}
		for _, iv := range []string{"15m", "1h", "4h"} {
			rest.klines[sym+iv] = candles
		}
		rest.rsi[sym+"1h"] = 55
	}
	store := seedStore(clock, tickers...)
	d := NewMultiTimeframe(store, rest, clock)

	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(d.cache) != mtfPerCycle {
		t.Fatalf("cache size = %d, want %d", len(d.cache), mtfPerCycle)
	}
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(d.cache) != 8 {
		t.Fatalf("cache size after wrap = %d, want 8", len(d.cache))
	}
}

func TestLiquidationEstimate(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	d := NewLiquidation(store, clock)

	price := 100.0
	for i := 0; i < liqSnapshots; i++ {
		tk := ticker("AAAUSDT", price, -2, 10_000_000)
		tk.EventTime = clock.Now()
		store.Update([]models.Ticker{tk})
		d.Update()
		clock.Advance(5 * time.Second)
		price *= 0.998 // ~2% down across the window
	}

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.EstimatedUSD <= 0 {
		t.Fatalf("estimate = %v, want positive", a.EstimatedUSD)
	}
	if a.Direction != models.DirectionLong {
		t.Fatalf("down moves imply a long counter-move, got %v", a.Direction)
	}
}

func TestLiquidationWindowExpiry(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	d := NewLiquidation(store, clock)

	price := 100.0
	for i := 0; i < liqSnapshots; i++ {
		tk := ticker("AAAUSDT", price, -2, 10_000_000)
		tk.EventTime = clock.Now()
		store.Update([]models.Ticker{tk})
		d.Update()
		clock.Advance(5 * time.Second)
		price *= 0.997
	}
	if len(d.Detect()) != 1 {
		t.Fatalf("expected an accumulated event")
	}

	// flush the decline out of the sample window, then let the
	// accumulation window lapse
	for i := 0; i < liqSnapshots; i++ {
		flat := ticker("AAAUSDT", price, 0, 10_000_000)
		flat.EventTime = clock.Now()
		store.Update([]models.Ticker{flat})
		d.Update()
		clock.Advance(5 * time.Second)
	}
	clock.Advance(liqWindow + time.Second)
	flat := ticker("AAAUSDT", price, 0, 10_000_000)
	flat.EventTime = clock.Now()
	store.Update([]models.Ticker{flat})
	d.Update()
	if alerts := d.Detect(); len(alerts) != 0 {
		t.Fatalf("stale events must expire, got %d alerts", len(alerts))
	}
}

func TestWhaleClassification(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	d := NewWhale(store, clock)

	// 21 baseline points climbing 50K/step, then 10 points at 300K/step
	// with a rising price: ratio 6x, sustained accumulation.
	vol := 10_000_000.0
	price := 100.0
	step := func(dv, dp float64) {
		vol += dv
		price += dp
		tk := ticker("AAAUSDT", price, 1, vol)
		tk.EventTime = clock.Now()
		store.Update([]models.Ticker{tk})
		d.Update()
		clock.Advance(10 * time.Second)
	}
	for i := 0; i <= whaleOlderSpan; i++ {
		step(50_000, 0)
	}
	for i := 0; i < whaleRecentSpan; i++ {
		step(300_000, 0.2)
	}

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Activity != models.WhaleAccumulation {
		t.Fatalf("activity = %v, want ACCUMULATION", a.Activity)
	}
	if math.Abs(a.Ratio-6) > 1e-9 {
		t.Fatalf("ratio = %v, want 6", a.Ratio)
	}
	if a.SizeUSD != 3_000_000 {
		t.Fatalf("size = %v, want 3000000", a.SizeUSD)
	}
	wantConf := clamp(3_000_000*25/1_000_000+6*50/10, 0, 100)
	if math.Abs(a.Confidence-wantConf) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", a.Confidence, wantConf)
	}
}

func TestCorrelationDecoupling(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	d := NewCorrelation(store, clock)

	// BTC trends up linearly, ALT oscillates: |r| near zero.
	for i := 0; i < 30; i++ {
		btc := ticker("BTCUSDT", 50_000+float64(i)*100, 1, 100_000_000)
		alt := ticker("ALTUSDT", 10+math.Sin(float64(i))*0.5, 0, 10_000_000)
		btc.EventTime = clock.Now()
		alt.EventTime = clock.Now()
		store.Update([]models.Ticker{btc, alt})
		d.Update()
		clock.Advance(time.Second)
	}

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if !alerts[0].Decoupled {
		t.Fatalf("expected decoupling, r = %v", alerts[0].Correlation)
	}
}

func TestCorrelationOutperformance(t *testing.T) {
	clock := newFakeClock()
	store := datastore.New(clock, 5*time.Minute, time.Hour)
	d := NewCorrelation(store, clock)

	// both trend up, ALT much faster: high r, big spread.
	for i := 0; i < 30; i++ {
		btc := ticker("BTCUSDT", 50_000*(1+0.0003*float64(i)), 1, 100_000_000)
		alt := ticker("ALTUSDT", 10*(1+0.003*float64(i)), 5, 10_000_000)
		btc.EventTime = clock.Now()
		alt.EventTime = clock.Now()
		store.Update([]models.Ticker{btc, alt})
		d.Update()
		clock.Advance(time.Second)
	}

	alerts := d.Detect()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Decoupled {
		t.Fatalf("correlated series flagged as decoupled, r = %v", a.Correlation)
	}
	if a.Outperformance <= corrOutperform {
		t.Fatalf("outperformance = %v, want > %v", a.Outperformance, corrOutperform)
	}
	if a.Direction != models.DirectionLong {
		t.Fatalf("direction = %v, want LONG", a.Direction)
	}
}

func TestSentimentLabels(t *testing.T) {
	cases := []struct {
		score float64
		want  models.SentimentLabel
	}{
		{10, models.SentimentExtremeFear},
		{25, models.SentimentFear},
		{50, models.SentimentNeutralLabel},
		{65, models.SentimentGreed},
		{90, models.SentimentExtremeGreed},
	}
	for _, tc := range cases {
		if got := models.LabelForScore(tc.score); got != tc.want {
			t.Fatalf("label(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestSentimentMarketBreadth(t *testing.T) {
	clock := newFakeClock()
	store := seedStore(clock,
		ticker("AAAUSDT", 10, 8, 5_000_000),
		ticker("BBBUSDT", 10, 4, 5_000_000),
		ticker("CCCUSDT", 10, -2, 5_000_000),
		ticker("DDDUSDT", 10, -6, 5_000_000),
	)
	funding := NewFunding(store, &fakeREST{}, clock)
	velocity := NewVelocity(store, clock, 0.5, 0.1)
	oi := NewOpenInterest(store, &fakeREST{oi: map[string]float64{}}, clock)
	d := NewSentiment(store, clock, funding, velocity, oi)

	m := d.Market()
	if m.Breadth != 0.5 {
		t.Fatalf("breadth = %v, want 0.5", m.Breadth)
	}
	if m.Score <= 0 || m.Score >= 100 {
		t.Fatalf("score = %v, want inside (0,100)", m.Score)
	}
	if m.Label != models.LabelForScore(m.Score) {
		t.Fatalf("label %v does not match score %v", m.Label, m.Score)
	}
}

func TestPatternDoubleFormations(t *testing.T) {
	mkCloses := func(closes []float64) []models.Candle {
		out := make([]models.Candle, len(closes))
		for i, c := range closes {
			out[i] = models.Candle{Open: c, High: c, Low: c, Close: c}
		}
		return out
	}

	// two matching peaks at 110/109.5, close well below
	var topCloses []float64
	for i := 0; i < 10; i++ {
		topCloses = append(topCloses, 100+float64(i))
	}
	topCloses[9] = 110
	for i := 0; i < 10; i++ {
		topCloses = append(topCloses, 100)
	}
	topCloses[14] = 109.5
	topCloses[19] = 100
	kind, level := doubleFormation(mkCloses(topCloses))
	if kind != models.PatternDoubleTop {
		t.Fatalf("kind = %v, want DOUBLE_TOP", kind)
	}
	if level != 110 {
		t.Fatalf("level = %v, want 110", level)
	}

	// two matching troughs at 90/90.5, close reclaimed above
	var botCloses []float64
	for i := 0; i < 10; i++ {
		botCloses = append(botCloses, 100)
	}
	botCloses[5] = 90
	for i := 0; i < 10; i++ {
		botCloses = append(botCloses, 100)
	}
	botCloses[14] = 90.5
	kind, level = doubleFormation(mkCloses(botCloses))
	if kind != models.PatternDoubleBottom {
		t.Fatalf("kind = %v, want DOUBLE_BOTTOM", kind)
	}
	if level != 90 {
		t.Fatalf("level = %v, want 90", level)
	}
}

func TestPatternTouchClusters(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 5; i++ {
		candles = append(candles, models.Candle{High: 100.5, Low: 99.8})
	}
	levels := touchClusters(candles)
	if len(levels) == 0 {
		t.Fatalf("expected at least one cluster")
	}
	if levels[0] < 99 || levels[0] > 101 {
		t.Fatalf("cluster level = %v, want near 100", levels[0])
	}
}

func TestEntryTimingClassification(t *testing.T) {
	highs := make([]float64, 30)
	lows := make([]float64, 30)
	for i := range highs {
		highs[i], lows[i] = 101, 99
	}

	if et, dir := classifyEntry(100, 100, 75, highs, lows); et != models.EntryReversal || dir != models.DirectionShort {
		t.Fatalf("rsi 75: got %v/%v, want REVERSAL/SHORT", et, dir)
	}
	if et, dir := classifyEntry(100, 100, 25, highs, lows); et != models.EntryReversal || dir != models.DirectionLong {
		t.Fatalf("rsi 25: got %v/%v, want REVERSAL/LONG", et, dir)
	}
	if et, dir := classifyEntry(102, 100, 55, highs, lows); et != models.EntryBreakout || dir != models.DirectionLong {
		t.Fatalf("breakout up: got %v/%v, want BREAKOUT/LONG", et, dir)
	}
	if et, dir := classifyEntry(98, 100, 55, highs, lows); et != models.EntryBreakout || dir != models.DirectionShort {
		t.Fatalf("breakout down: got %v/%v, want BREAKOUT/SHORT", et, dir)
	}
	if et, dir := classifyEntry(100.2, 100, 55, highs, lows); et != models.EntryEarly || dir != models.DirectionLong {
		t.Fatalf("pullback: got %v/%v, want EARLY/LONG", et, dir)
	}
	if et, dir := classifyEntry(100.5, 99, 55, highs, lows); et != models.EntryMomentum || dir != models.DirectionLong {
		t.Fatalf("momentum: got %v/%v, want MOMENTUM/LONG", et, dir)
	}
}

func TestVWAPOver(t *testing.T) {
	candles := []models.Candle{
		{High: 102, Low: 98, Close: 100, Volume: 10},
		{High: 112, Low: 108, Close: 110, Volume: 30},
	}
	// typical prices 100 and 110 weighted 10:30
	want := (100.0*10 + 110.0*30) / 40
	if got := vwapOver(candles, 20); math.Abs(got-want) > 1e-9 {
		t.Fatalf("vwap = %v, want %v", got, want)
	}
}

func TestTopPickOrderingAndLimit(t *testing.T) {
	clock := newFakeClock()
	var tickers []models.Ticker
	for i := 0; i < 15; i++ {
		tickers = append(tickers, ticker(fmt.Sprintf("S%02dUSDT", i), 10, 30, 5_000_000))
	}
	store := seedStore(clock, tickers...)

	// a second price point one minute later gives every symbol a 2%/min
	// velocity on top of the 24h move
	clock.Advance(time.Minute)
	moved := make([]models.Ticker, len(tickers))
	for i, tk := range tickers {
		tk.LastPrice = 10.2
		tk.EventTime = clock.Now()
		moved[i] = tk
	}
	store.Update(moved)

	rest := &fakeREST{oi: map[string]float64{}, klines: map[string][]models.Candle{}, rsi: map[string]float64{}}
	volume := NewVolume(store, clock, 3, 1_000_000)
	velocity := NewVelocity(store, clock, 0.5, 0.1)
	funding := NewFunding(store, rest, clock)
	oi := NewOpenInterest(store, rest, clock)
	mtf := NewMultiTimeframe(store, rest, clock)
	pattern := NewPattern(store, rest, clock)
	entry := NewEntryTiming(store, rest, clock)
	d := NewTopPick(store, clock, volume, velocity, funding, oi, mtf, pattern, entry)

	picks := d.Detect()
	if len(picks) != topPickLimit {
		t.Fatalf("picks = %d, want capped at %d", len(picks), topPickLimit)
	}
	for i := 1; i < len(picks); i++ {
		if picks[i].Score > picks[i-1].Score {
			t.Fatalf("picks not sorted: %v before %v", picks[i-1].Score, picks[i].Score)
		}
	}
	for _, p := range picks {
		if len(p.Reasons) == 0 {
			t.Fatalf("%s has no reasons", p.Symbol)
		}
		if p.Direction != models.DirectionLong {
			t.Fatalf("%s direction = %v, want LONG", p.Symbol, p.Direction)
		}
	}
}

func TestClassifyOICoversAllSignals(t *testing.T) {
	cases := []struct {
		oiChange, priceChange float64
		want                  models.OISignal
	}{
		{3, 2, models.OIStrongTrend},
		{3, -2, models.OIBuildingShorts},
		{3, 0, models.OIBuildingLongs},
		{-3, 2, models.OIClosingPositions},
		{-3, -2, models.OIClosingPositions},
		{-3, 0, models.OIClosingPositions},
		{0, 2, models.OINeutral},
		{0, 0, models.OINeutral},
	}
	for _, c := range cases {
		if got := ClassifyOI(c.oiChange, c.priceChange); got != c.want {
			t.Fatalf("classify(%v, %v) = %v, want %v", c.oiChange, c.priceChange, got, c.want)
		}
	}
}

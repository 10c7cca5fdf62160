package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	patternCandles   = 48 // 1h bars
	patternUniverse  = 50
	patternPerCycle  = 5
	patternProximity = 2.0 // percent distance that counts as "at" a level
	patternTouches   = 3
	patternFormBars  = 20 // closes inspected for double tops/bottoms
	patternReclaim   = 2.0
)

// Pattern mines hourly candles for key levels and simple two-peak
// formations, alerting when price trades close to either.
type Pattern struct {
	store *datastore.Store
	rest  drepo.ExchangeREST
	clock drepo.Clock

	mu     sync.Mutex
	queue  []string
	cursor int
	cache  map[string][]models.Candle
}

func NewPattern(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock) *Pattern {
	return &Pattern{store: store, rest: rest, clock: clock, cache: make(map[string][]models.Candle)}
}

func (d *Pattern) Name() string { return "pattern" }

// Update rotates through the most liquid symbols, refreshing a few
// candle sets per tick.
func (d *Pattern) Update(ctx context.Context) error {
	d.refreshQueue()

	d.mu.Lock()
	n := len(d.queue)
	if n == 0 {
		d.mu.Unlock()
		return nil
	}
	group := make([]string, 0, patternPerCycle)
	for i := 0; i < patternPerCycle && i < n; i++ {
		group = append(group, d.queue[(d.cursor+i)%n])
	}
	d.cursor = (d.cursor + patternPerCycle) % n
	d.mu.Unlock()

	var firstErr error
	for _, sym := range group {
		candles, err := d.rest.GetKlines(ctx, sym, "1h", patternCandles)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("klines %s 1h: %w", sym, err)
			}
			continue
		}
		d.mu.Lock()
		d.cache[sym] = candles
		d.mu.Unlock()
	}
	return firstErr
}

func (d *Pattern) refreshQueue() {
	states := d.store.All()
	sort.Slice(states, func(i, j int) bool {
		if states[i].Current.QuoteVolume != states[j].Current.QuoteVolume {
			return states[i].Current.QuoteVolume > states[j].Current.QuoteVolume
		}
		return states[i].Symbol < states[j].Symbol
	})
	n := patternUniverse
	if len(states) < n {
		n = len(states)
	}
	queue := make([]string, 0, n)
	for _, st := range states[:n] {
		queue = append(queue, st.Symbol)
	}
	d.mu.Lock()
	d.queue = queue
	d.mu.Unlock()
}

func (d *Pattern) Detect() []models.PatternAlert {
	now := d.clock.Now()
	var out []models.PatternAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, candles := range d.cache {
		t, ok := d.store.Ticker(sym)
		if !ok || t.LastPrice <= 0 || len(candles) == 0 {
			continue
		}
		best, found := d.classify(t, candles)
		if !found {
			continue
		}
		best.Symbol = sym
		best.Timestamp = now
		out = append(out, best)
	}
	sortByMagnitude(out, func(a models.PatternAlert) float64 { return a.Confidence }, func(a models.PatternAlert) string { return a.Symbol })
	return out
}

// PatternFor exposes the latest classification for one symbol.
func (d *Pattern) PatternFor(symbol string) (models.PatternAlert, bool) {
	d.mu.Lock()
	candles := d.cache[symbol]
	d.mu.Unlock()
	t, ok := d.store.Ticker(symbol)
	if !ok || t.LastPrice <= 0 || len(candles) == 0 {
		return models.PatternAlert{}, false
	}
	alert, found := d.classify(t, candles)
	if !found {
		return models.PatternAlert{}, false
	}
	alert.Symbol = symbol
	alert.Timestamp = d.clock.Now()
	return alert, true
}

// classify prefers completed formations over level proximity.
func (d *Pattern) classify(t models.Ticker, candles []models.Candle) (models.PatternAlert, bool) {
	price := t.LastPrice

	if kind, level := doubleFormation(candles); kind != models.PatternNone {
		return models.PatternAlert{
			Pattern:     kind,
			Level:       level,
			DistancePct: distancePct(price, level),
			Confidence:  80,
			Direction:   formationDirection(kind),
		}, true
	}

	type scored struct {
		kind  models.PatternKind
		level float64
		conf  float64
	}
	var candidates []scored

	if dist := distancePct(price, t.HighPrice); t.HighPrice > 0 && dist <= patternProximity {
		candidates = append(candidates, scored{models.PatternNearHigh24h, t.HighPrice, 70 - dist*10})
	}
	if dist := distancePct(price, t.LowPrice); t.LowPrice > 0 && dist <= patternProximity {
		candidates = append(candidates, scored{models.PatternNearLow24h, t.LowPrice, 70 - dist*10})
	}
	if rn := nearestRoundNumber(price); rn > 0 {
		if dist := distancePct(price, rn); dist <= patternProximity {
			candidates = append(candidates, scored{models.PatternRoundNumber, rn, 55 - dist*10})
		}
	}
	for _, lvl := range touchClusters(candles) {
		if dist := distancePct(price, lvl); dist <= patternProximity {
			candidates = append(candidates, scored{models.PatternKeyLevel, lvl, 65 - dist*10})
		}
	}

	if len(candidates) == 0 {
		return models.PatternAlert{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.conf > best.conf {
			best = c
		}
	}
	dir := models.DirectionNeutral
	if price < best.level {
		dir = models.DirectionLong
	} else if price > best.level {
		dir = models.DirectionShort
	}
	return models.PatternAlert{
		Pattern:     best.kind,
		Level:       best.level,
		DistancePct: distancePct(price, best.level),
		Confidence:  clamp(best.conf, 0, 100),
		Direction:   dir,
	}, true
}

// doubleFormation inspects the last closes split in half: matching extremes
// within the proximity band plus a reclaiming current close make a top or
// bottom.
func doubleFormation(candles []models.Candle) (models.PatternKind, float64) {
	n := len(candles)
	if n < patternFormBars {
		return models.PatternNone, 0
	}
	closes := make([]float64, patternFormBars)
	for i := 0; i < patternFormBars; i++ {
		closes[i] = candles[n-patternFormBars+i].Close
	}
	half := patternFormBars / 2
	firstHigh, firstLow := extremes(closes[:half])
	secondHigh, secondLow := extremes(closes[half:])
	cur := closes[len(closes)-1]

	if firstHigh > 0 && distancePct(secondHigh, firstHigh) <= patternProximity {
		peak := math.Max(firstHigh, secondHigh)
		if cur <= peak*(1-patternReclaim/100) {
			return models.PatternDoubleTop, peak
		}
	}
	if firstLow > 0 && distancePct(secondLow, firstLow) <= patternProximity {
		trough := math.Min(firstLow, secondLow)
		if cur >= trough*(1+patternReclaim/100) {
			return models.PatternDoubleBottom, trough
		}
	}
	return models.PatternNone, 0
}

// touchClusters groups candle extremes into levels touched at least three
// times, using the proximity band as cluster width.
func touchClusters(candles []models.Candle) []float64 {
	var points []float64
	for _, c := range candles {
		points = append(points, c.High, c.Low)
	}
	sort.Float64s(points)

	var levels []float64
	for i := 0; i < len(points); {
		j := i + 1
		for j < len(points) && points[i] > 0 && distancePct(points[j], points[i]) <= patternProximity {
			j++
		}
		if j-i >= patternTouches {
			var sum float64
			for _, p := range points[i:j] {
				sum += p
			}
			levels = append(levels, sum/float64(j-i))
		}
		i = j
	}
	return levels
}

// nearestRoundNumber snaps to the closest power-of-ten-scaled half step.
func nearestRoundNumber(price float64) float64 {
	if price <= 0 {
		return 0
	}
	magnitude := math.Pow(10, math.Floor(math.Log10(price)))
	step := magnitude / 2
	return math.Round(price/step) * step
}

func distancePct(a, b float64) float64 {
	if b == 0 {
		return math.MaxFloat64
	}
	return math.Abs(a-b) / b * 100
}

func extremes(vals []float64) (high, low float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	high, low = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low
}

func formationDirection(kind models.PatternKind) models.Direction {
	switch kind {
	case models.PatternDoubleTop:
		return models.DirectionShort
	case models.PatternDoubleBottom:
		return models.DirectionLong
	default:
		return models.DirectionNeutral
	}
}

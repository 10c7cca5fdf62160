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
	mtfUniverse   = 50 // highest-liquidity symbols in rotation
	mtfPerCycle   = 5  // symbols refreshed per Update
	mtfStrongMove = 2.0
	mtfDivergence = 2.0
)

type mtfState struct {
	change15m float64
	change1h  float64
	change4h  float64
	rsi1h     float64
}

// MultiTimeframe refreshes a rotating queue of the most liquid symbols,
// polling 15m/1h/4h candles plus 1h RSI, and classifies cross-timeframe
// alignment, divergence and momentum.
type MultiTimeframe struct {
	store *datastore.Store
	rest  drepo.ExchangeREST
	clock drepo.Clock

	mu     sync.Mutex
	queue  []string
	cursor int
	cache  map[string]mtfState
}

func NewMultiTimeframe(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock) *MultiTimeframe {
	return &MultiTimeframe{store: store, rest: rest, clock: clock, cache: make(map[string]mtfState)}
}

func (d *MultiTimeframe) Name() string { return "multi_timeframe" }

// Update refreshes the rotation queue and polls the next group of symbols.
func (d *MultiTimeframe) Update(ctx context.Context) error {
	d.refreshQueue()

	d.mu.Lock()
	n := len(d.queue)
	if n == 0 {
		d.mu.Unlock()
		return nil
	}
	group := make([]string, 0, mtfPerCycle)
	for i := 0; i < mtfPerCycle && i < n; i++ {
		group = append(group, d.queue[(d.cursor+i)%n])
	}
	d.cursor = (d.cursor + mtfPerCycle) % n
	d.mu.Unlock()

	var firstErr error
	for _, sym := range group {
		st, err := d.fetch(ctx, sym)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.mu.Lock()
		d.cache[sym] = st
		d.mu.Unlock()
	}
	return firstErr
}

func (d *MultiTimeframe) refreshQueue() {
	states := d.store.All()
	sort.Slice(states, func(i, j int) bool {
		if states[i].Current.QuoteVolume != states[j].Current.QuoteVolume {
			return states[i].Current.QuoteVolume > states[j].Current.QuoteVolume
		}
		return states[i].Symbol < states[j].Symbol
	})
	n := mtfUniverse
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

func (d *MultiTimeframe) fetch(ctx context.Context, symbol string) (mtfState, error) {
	var st mtfState
	for _, tf := range []struct {
		interval string
		dst      *float64
	}{
		{"15m", &st.change15m},
		{"1h", &st.change1h},
		{"4h", &st.change4h},
	} {
		candles, err := d.rest.GetKlines(ctx, symbol, tf.interval, 2)
		if err != nil {
			return st, fmt.Errorf("klines %s %s: %w", symbol, tf.interval, err)
		}
		if len(candles) < 2 || candles[0].Open == 0 {
			return st, fmt.Errorf("klines %s %s: too few candles", symbol, tf.interval)
		}
		last := candles[len(candles)-1]
		if last.Open == 0 {
			return st, fmt.Errorf("klines %s %s: zero open", symbol, tf.interval)
		}
		*tf.dst = (last.Close - last.Open) / last.Open * 100
	}
	rsi, err := d.rest.GetSymbolRSI(ctx, symbol, "1h")
	if err != nil {
		return st, fmt.Errorf("rsi %s: %w", symbol, err)
	}
	st.rsi1h = rsi
	return st, nil
}

func (d *MultiTimeframe) Detect() []models.MultiTimeframeAlert {
	now := d.clock.Now()
	var out []models.MultiTimeframeAlert

	d.mu.Lock()
	defer d.mu.Unlock()

	for sym, st := range d.cache {
		align := classifyAlignment(st)
		if align == models.AlignMixed && divergenceOf(st) == models.DivergenceNone {
			continue
		}
		out = append(out, models.MultiTimeframeAlert{
			Symbol:     sym,
			Change15m:  st.change15m,
			Change1h:   st.change1h,
			Change4h:   st.change4h,
			RSI1h:      st.rsi1h,
			Alignment:  align,
			Divergence: divergenceOf(st),
			Momentum:   momentumOf(st),
			Direction:  alignmentDirection(align),
			Timestamp:  now,
		})
	}
	sortByMagnitude(out, func(a models.MultiTimeframeAlert) float64 { return a.Change4h }, func(a models.MultiTimeframeAlert) string { return a.Symbol })
	return out
}

// StateFor exposes the cached per-symbol view for the fusion engine.
func (d *MultiTimeframe) StateFor(symbol string) (models.MultiTimeframeAlert, bool) {
	d.mu.Lock()
	st, ok := d.cache[symbol]
	d.mu.Unlock()
	if !ok {
		return models.MultiTimeframeAlert{}, false
	}
	return models.MultiTimeframeAlert{
		Symbol:     symbol,
		Change15m:  st.change15m,
		Change1h:   st.change1h,
		Change4h:   st.change4h,
		RSI1h:      st.rsi1h,
		Alignment:  classifyAlignment(st),
		Divergence: divergenceOf(st),
		Momentum:   momentumOf(st),
		Direction:  alignmentDirection(classifyAlignment(st)),
		Timestamp:  d.clock.Now(),
	}, true
}

func classifyAlignment(st mtfState) models.MTFAlignment {
	pos := st.change15m > 0 && st.change1h > 0 && st.change4h > 0
	neg := st.change15m < 0 && st.change1h < 0 && st.change4h < 0
	strong := math.Abs(st.change15m) > mtfStrongMove || math.Abs(st.change1h) > mtfStrongMove || math.Abs(st.change4h) > mtfStrongMove
	switch {
	case pos && strong:
		return models.AlignStrongBullish
	case pos:
		return models.AlignBullish
	case neg && strong:
		return models.AlignStrongBearish
	case neg:
		return models.AlignBearish
	default:
		return models.AlignMixed
	}
}

func divergenceOf(st mtfState) models.DivergenceType {
	if st.change15m > 0 && st.change4h <= -mtfDivergence {
		return models.DivergenceBullish
	}
	if st.change15m < 0 && st.change4h >= mtfDivergence {
		return models.DivergenceBearish
	}
	return models.DivergenceNone
}

func momentumOf(st mtfState) models.MomentumState {
	// short frames outrunning long frames reads as acceleration
	short := math.Abs(st.change15m)
	long := math.Abs(st.change4h) / 16 // normalise per 15m bar
	switch {
	case short > long*1.5:
		return models.MomentumAccelerating
	case short < long*0.5:
		return models.MomentumDecelerating
	default:
		return models.MomentumSteady
	}
}

func alignmentDirection(a models.MTFAlignment) models.Direction {
	switch a {
	case models.AlignStrongBullish, models.AlignBullish:
		return models.DirectionLong
	case models.AlignStrongBearish, models.AlignBearish:
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

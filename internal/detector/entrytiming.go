package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markcheno/go-talib"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	entryCandles   = 50 // 15m bars
	entryUniverse  = 50
	entryPerCycle  = 5
	entryATRPeriod = 14
	entryVWAPSpan  = 20
	entryRSIPeriod = 14
	entryBreakSpan = 20
	entryMinRR     = 1.5

	entryStopATR = 2.0
)

var entryTakeATR = [3]float64{1.5, 3, 5}

// EntryTiming derives concrete trade setups from 15m candles: entry type,
// ATR-based stop and take-profit ladder, filtered on risk/reward.
type EntryTiming struct {
	store *datastore.Store
	rest  drepo.ExchangeREST
	clock drepo.Clock

	mu     sync.Mutex
	queue  []string
	cursor int
	cache  map[string]models.EntryTimingAlert
}

func NewEntryTiming(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock) *EntryTiming {
	return &EntryTiming{store: store, rest: rest, clock: clock, cache: make(map[string]models.EntryTimingAlert)}
}

func (d *EntryTiming) Name() string { return "entry_timing" }

// Update rotates through the most liquid symbols and recomputes setups
// for the next group.
func (d *EntryTiming) Update(ctx context.Context) error {
	d.refreshQueue()

	d.mu.Lock()
	n := len(d.queue)
	if n == 0 {
		d.mu.Unlock()
		return nil
	}
	group := make([]string, 0, entryPerCycle)
	for i := 0; i < entryPerCycle && i < n; i++ {
		group = append(group, d.queue[(d.cursor+i)%n])
	}
	d.cursor = (d.cursor + entryPerCycle) % n
	d.mu.Unlock()

	now := d.clock.Now()
	var firstErr error
	for _, sym := range group {
		candles, err := d.rest.GetKlines(ctx, sym, "15m", entryCandles)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("klines %s 15m: %w", sym, err)
			}
			continue
		}
		alert, ok := buildSetup(sym, candles)
		d.mu.Lock()
		if ok {
			alert.Timestamp = now
			d.cache[sym] = alert
		} else {
			delete(d.cache, sym)
		}
		d.mu.Unlock()
	}
	return firstErr
}

func (d *EntryTiming) refreshQueue() {
	states := d.store.All()
	sort.Slice(states, func(i, j int) bool {
		if states[i].Current.QuoteVolume != states[j].Current.QuoteVolume {
			return states[i].Current.QuoteVolume > states[j].Current.QuoteVolume
		}
		return states[i].Symbol < states[j].Symbol
	})
	n := entryUniverse
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

func (d *EntryTiming) Detect() []models.EntryTimingAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.EntryTimingAlert, 0, len(d.cache))
	for _, a := range d.cache {
		out = append(out, a)
	}
	sortByMagnitude(out, func(a models.EntryTimingAlert) float64 { return a.RiskReward }, func(a models.EntryTimingAlert) string { return a.Symbol })
	return out
}

// SetupFor exposes the cached setup for one symbol.
func (d *EntryTiming) SetupFor(symbol string) (models.EntryTimingAlert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.cache[symbol]
	return a, ok
}

func buildSetup(symbol string, candles []models.Candle) (models.EntryTimingAlert, bool) {
	if len(candles) < entryBreakSpan+2 || len(candles) <= entryATRPeriod {
		return models.EntryTimingAlert{}, false
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}

	atrSeries := talib.Atr(highs, lows, closes, entryATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	rsiSeries := talib.Rsi(closes, entryRSIPeriod)
	rsi := rsiSeries[len(rsiSeries)-1]
	vwap := vwapOver(candles, entryVWAPSpan)

	entry := closes[len(closes)-1]
	if entry <= 0 || atr <= 0 || vwap <= 0 {
		return models.EntryTimingAlert{}, false
	}

	entryType, direction := classifyEntry(entry, vwap, rsi, highs, lows)
	if direction == models.DirectionNeutral {
		return models.EntryTimingAlert{}, false
	}

	sign := 1.0
	if direction == models.DirectionShort {
		sign = -1
	}
	stop := entry - sign*entryStopATR*atr
	var takes [3]float64
	for i, m := range entryTakeATR {
		takes[i] = entry + sign*m*atr
	}
	rr := math.Abs(takes[1]-entry) / math.Abs(entry-stop)
	if rr < entryMinRR {
		return models.EntryTimingAlert{}, false
	}

	return models.EntryTimingAlert{
		Symbol:     symbol,
		EntryType:  entryType,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: takes,
		ATR:        atr,
		ATRPct:     atr / entry * 100,
		VWAP:       vwap,
		RSI:        rsi,
		RiskReward: rr,
		Direction:  direction,
	}, true
}

// classifyEntry orders checks by specificity: RSI extremes, then 20-bar
// breakouts, then pullbacks to VWAP, momentum otherwise.
func classifyEntry(entry, vwap, rsi float64, highs, lows []float64) (models.EntryType, models.Direction) {
	switch {
	case rsi >= 70:
		return models.EntryReversal, models.DirectionShort
	case rsi <= 30:
		return models.EntryReversal, models.DirectionLong
	}

	prevHighs := highs[len(highs)-entryBreakSpan-1 : len(highs)-1]
	prevLows := lows[len(lows)-entryBreakSpan-1 : len(lows)-1]
	hi, _ := extremes(prevHighs)
	_, lo := extremes(prevLows)
	switch {
	case entry > hi:
		return models.EntryBreakout, models.DirectionLong
	case entry < lo:
		return models.EntryBreakout, models.DirectionShort
	}

	if math.Abs(entry-vwap)/vwap*100 <= 0.5 {
		if entry >= vwap {
			return models.EntryEarly, models.DirectionLong
		}
		return models.EntryEarly, models.DirectionShort
	}

	if entry > vwap {
		return models.EntryMomentum, models.DirectionLong
	}
	return models.EntryMomentum, models.DirectionShort
}

// vwapOver computes a volume-weighted average of typical prices over the
// last span candles.
func vwapOver(candles []models.Candle, span int) float64 {
	if len(candles) < span {
		span = len(candles)
	}
	var pv, vol float64
	for _, c := range candles[len(candles)-span:] {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return 0
	}
	return pv / vol
}

// Package engine fuses the detectors' per-symbol views into weighted
// SmartSignals, optionally enhanced by the ML predictor.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"PulseScan/internal/datastore"
	"PulseScan/internal/detector"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/logger"
)

// Fixed component weights. W in the confluence formula is the sum over
// the components actually present.
const (
	weightPriceMovement = 20
	weightVolume        = 15
	weightVelocity      = 20
	weightFunding       = 15
	weightOpenInterest  = 10
	weightMultiTF       = 20
)

const (
	componentPriceMovement = "PriceMovement"
	componentVolume        = "Volume"
	componentVelocity      = "Velocity"
	componentFunding       = "Funding"
	componentOpenInterest  = "OpenInterest"
	componentMultiTF       = "MultiTimeframe"
)

// net thresholds for calling a direction
const directionThreshold = 10

// Detectors bundles the read-only detector handles the engine consumes.
type Detectors struct {
	Volume      *detector.Volume
	Velocity    *detector.Velocity
	Funding     *detector.Funding
	OI          *detector.OpenInterest
	MTF         *detector.MultiTimeframe
	Pattern     *detector.Pattern
	Entry       *detector.EntryTiming
	Whale       *detector.Whale
	Correlation *detector.Correlation
}

// Config carries the fusion tunables.
type Config struct {
	EmitThreshold float64 // minimum confidence for an emitted signal
	WeightML      float64
	WeightRule    float64
}

// Engine computes fused signals per symbol and retains the latest one
// with overwrite semantics.
type Engine struct {
	store     *datastore.Store
	clock     drepo.Clock
	det       Detectors
	predictor drepo.Predictor
	log       *logger.Logger
	metrics   drepo.Metrics
	cfg       Config

	mu        sync.RWMutex
	latest    map[string]models.SmartSignal
	reversals map[string]models.ReversalSignal
}

func New(store *datastore.Store, clock drepo.Clock, det Detectors, predictor drepo.Predictor, log *logger.Logger, metrics drepo.Metrics, cfg Config) *Engine {
	return &Engine{
		store:     store,
		clock:     clock,
		det:       det,
		predictor: predictor,
		log:       log,
		metrics:   metrics,
		cfg:       cfg,
		latest:    make(map[string]models.SmartSignal),
		reversals: make(map[string]models.ReversalSignal),
	}
}

// AnalyzeAll runs one fusion cycle over every tracked symbol and returns
// the signals that cleared the emit threshold, plus this cycle's reversal
// signals.
func (e *Engine) AnalyzeAll(ctx context.Context) ([]models.SmartSignal, []models.ReversalSignal) {
	var emitted []models.SmartSignal
	var reversals []models.ReversalSignal

	for _, st := range e.store.All() {
		sig, ok := e.Analyze(ctx, st)
		if ok {
			emitted = append(emitted, sig)
		}
		if rev, ok := e.reversalFor(st); ok {
			e.mu.Lock()
			e.reversals[st.Symbol] = rev
			e.mu.Unlock()
			reversals = append(reversals, rev)
		}
	}

	sort.Slice(emitted, func(i, j int) bool {
		if emitted[i].Confidence != emitted[j].Confidence {
			return emitted[i].Confidence > emitted[j].Confidence
		}
		return emitted[i].Symbol < emitted[j].Symbol
	})
	sort.Slice(reversals, func(i, j int) bool {
		if reversals[i].Confidence != reversals[j].Confidence {
			return reversals[i].Confidence > reversals[j].Confidence
		}
		return reversals[i].Symbol < reversals[j].Symbol
	})
	return emitted, reversals
}

// Analyze fuses one symbol. The fused signal is always retained; ok
// reports whether it cleared the emit threshold with a defined direction.
func (e *Engine) Analyze(ctx context.Context, st datastore.SymbolState) (models.SmartSignal, bool) {
	comps, reasoning := e.components(st)
	if len(comps) == 0 {
		return models.SmartSignal{}, false
	}

	confluence, confidence, direction := calculateConfluence(comps)
	sig := models.SmartSignal{
		ID:              uuid.NewString(),
		Symbol:          st.Symbol,
		Direction:       direction,
		Confidence:      confidence,
		ConfluenceScore: confluence,
		Components:      comps,
		Reasoning:       reasoning,
		EntryType:       e.entryType(st, comps),
		RiskLevel:       riskLevel(confluence, comps),
		Price:           st.Current.LastPrice,
		Timestamp:       e.clock.Now(),
	}

	emit := direction != models.DirectionNeutral && confidence >= e.cfg.EmitThreshold
	if emit {
		e.enhance(ctx, &sig, st)
		if e.metrics != nil {
			e.metrics.RecordSignal(string(sig.Direction))
		}
		e.log.Debug("signal emitted",
			logger.String("symbol", sig.Symbol),
			logger.String("direction", string(sig.Direction)),
			logger.Any("confidence", sig.Confidence),
		)
	}

	e.mu.Lock()
	e.latest[st.Symbol] = sig
	e.mu.Unlock()
	return sig, emit
}

// components builds the up-to-six weighted votes for one symbol. A
// detector with no data for the symbol contributes nothing.
func (e *Engine) components(st datastore.SymbolState) ([]models.SignalComponent, []string) {
	t := st.Current
	var comps []models.SignalComponent
	var reasoning []string

	add := func(name string, dir models.Direction, strength float64, weight int, reason string) {
		comps = append(comps, models.SignalComponent{
			Name:      name,
			Direction: componentDirection(dir),
			Strength:  clamp(strength, 0, 100),
			Weight:    weight,
		})
		reasoning = append(reasoning, reason)
	}

	add(componentPriceMovement,
		signDirection(t.PriceChangePct),
		math.Abs(t.PriceChangePct)*5,
		weightPriceMovement,
		fmt.Sprintf("24h move %.1f%%", t.PriceChangePct))

	if mult, ok := e.det.Volume.MultiplierFor(st.Symbol); ok {
		add(componentVolume,
			signDirection(t.PriceChangePct),
			mult*20,
			weightVolume,
			fmt.Sprintf("volume %.1fx average", mult))
	}

	if v, ok := e.det.Velocity.VelocityFor(st); ok {
		add(componentVelocity,
			signDirection(v),
			math.Abs(v)*40,
			weightVelocity,
			fmt.Sprintf("velocity %.2f%%/min", v))
	}

	if fr, ok := e.det.Funding.RateFor(st.Symbol); ok {
		fsig := detector.ClassifyFunding(fr.Rate, t.PriceChangePct)
		add(componentFunding,
			detector.FundingTradeDirection(fsig),
			detector.FundingStrength(fr.Rate),
			weightFunding,
			fmt.Sprintf("funding %.3f (%s)", fr.Rate, fsig))
	}

	if change, ok := e.det.OI.ChangeFor(st.Symbol); ok {
		osig := detector.ClassifyOI(change, t.PriceChangePct)
		add(componentOpenInterest,
			detector.OITradeDirection(osig, t.PriceChangePct),
			math.Abs(change)*10,
			weightOpenInterest,
			fmt.Sprintf("OI change %.1f%% (%s)", change, osig))
	}

	if mtf, ok := e.det.MTF.StateFor(st.Symbol); ok {
		add(componentMultiTF,
			mtf.Direction,
			alignmentStrength(mtf.Alignment),
			weightMultiTF,
			fmt.Sprintf("timeframes %s", mtf.Alignment))
	}

	return comps, reasoning
}

// calculateConfluence folds the weighted votes into (confluence,
// confidence, direction).
func calculateConfluence(comps []models.SignalComponent) (confluence, confidence float64, direction models.Direction) {
	var totalWeight int
	var bullish, bearish float64
	for _, c := range comps {
		totalWeight += c.Weight
		switch c.Direction {
		case models.ComponentBullish:
			bullish += c.Strength / 100 * float64(c.Weight)
		case models.ComponentBearish:
			bearish += c.Strength / 100 * float64(c.Weight)
		}
	}
	if totalWeight == 0 {
		return 0, 0, models.DirectionNeutral
	}

	net := bullish - bearish
	confluence = math.Abs(net) / float64(totalWeight) * 100

	netSide := models.ComponentNeutral
	switch {
	case net > 0:
		netSide = models.ComponentBullish
	case net < 0:
		netSide = models.ComponentBearish
	}
	aligned := 0
	for _, c := range comps {
		if c.Direction == netSide {
			aligned++
		}
	}
	confidence = math.Min(100, confluence+float64(aligned)/float64(len(comps))*20)

	switch {
	case net > directionThreshold:
		direction = models.DirectionLong
	case net < -directionThreshold:
		direction = models.DirectionShort
	default:
		direction = models.DirectionNeutral
	}
	return confluence, confidence, direction
}

// entryType picks the trading thesis, first match wins.
func (e *Engine) entryType(st datastore.SymbolState, comps []models.SignalComponent) models.EntryType {
	strength := func(name string) float64 {
		for _, c := range comps {
			if c.Name == name {
				return c.Strength
			}
		}
		return 0
	}

	divergence := models.DivergenceNone
	if mtf, ok := e.det.MTF.StateFor(st.Symbol); ok {
		divergence = mtf.Divergence
	}

	switch {
	case divergence != models.DivergenceNone || strength(componentFunding) > 70:
		return models.EntryReversal
	case strength(componentVolume) > 60 && strength(componentVelocity) < 40:
		return models.EntryEarly
	case strength(componentVelocity) > 70 && strength(componentMultiTF) > 60:
		return models.EntryBreakout
	default:
		return models.EntryMomentum
	}
}

func riskLevel(confluence float64, comps []models.SignalComponent) models.RiskLevel {
	strong := 0
	for _, c := range comps {
		if c.Strength > 50 {
			strong++
		}
	}
	switch {
	case confluence > 70 && strong >= 4:
		return models.RiskLow
	case confluence > 50 && strong >= 3:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// TopSignals returns the retained signals with the highest confidence.
// An empty direction matches any side; NEUTRAL signals are never returned.
func (e *Engine) TopSignals(limit int, direction models.Direction) []models.SmartSignal {
	out := e.filter(func(s models.SmartSignal) bool {
		if s.Direction == models.DirectionNeutral {
			return false
		}
		return direction == "" || s.Direction == direction
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// EarlyEntries returns directional signals classified as early entries.
func (e *Engine) EarlyEntries() []models.SmartSignal {
	return e.filter(func(s models.SmartSignal) bool {
		return s.Direction != models.DirectionNeutral && s.EntryType == models.EntryEarly
	})
}

// BreakoutCandidates returns directional breakout signals.
func (e *Engine) BreakoutCandidates() []models.SmartSignal {
	return e.filter(func(s models.SmartSignal) bool {
		return s.Direction != models.DirectionNeutral && s.EntryType == models.EntryBreakout
	})
}

// LowRiskSetups returns directional signals graded LOW risk.
func (e *Engine) LowRiskSetups() []models.SmartSignal {
	return e.filter(func(s models.SmartSignal) bool {
		return s.Direction != models.DirectionNeutral && s.RiskLevel == models.RiskLow
	})
}

// ReversalSignals returns the latest reversal signal per symbol.
func (e *Engine) ReversalSignals() []models.ReversalSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.ReversalSignal, 0, len(e.reversals))
	for _, r := range e.reversals {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Latest returns the retained signal for one symbol.
func (e *Engine) Latest(symbol string) (models.SmartSignal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.latest[symbol]
	return s, ok
}

func (e *Engine) filter(keep func(models.SmartSignal) bool) []models.SmartSignal {
	e.mu.RLock()
	var out []models.SmartSignal
	for _, s := range e.latest {
		if keep(s) {
			out = append(out, s)
		}
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func componentDirection(d models.Direction) models.ComponentDirection {
	switch d {
	case models.DirectionLong:
		return models.ComponentBullish
	case models.DirectionShort:
		return models.ComponentBearish
	default:
		return models.ComponentNeutral
	}
}

func signDirection(v float64) models.Direction {
	switch {
	case v > 0:
		return models.DirectionLong
	case v < 0:
		return models.DirectionShort
	default:
		return models.DirectionNeutral
	}
}

func alignmentStrength(a models.MTFAlignment) float64 {
	switch a {
	case models.AlignStrongBullish, models.AlignStrongBearish:
		return 85
	case models.AlignBullish, models.AlignBearish:
		return 65
	default:
		return 30
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

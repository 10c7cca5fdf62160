// Package snapshot assembles the immutable dashboard document from the
// store, the detector caches and the fused signals. Everything here is
// read-only over its sources; consumers never share state with them.
package snapshot

import (
	"PulseScan/internal/datastore"
	"PulseScan/internal/detector"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/internal/engine"
	"PulseScan/internal/outcome"
)

const recentSignals = 10

// Detectors bundles every cache-backed detector read at snapshot time.
type Detectors struct {
	Volatility  *detector.Volatility
	Velocity    *detector.Velocity
	Volume      *detector.Volume
	Range       *detector.Range
	NewListing  *detector.NewListing
	Funding     *detector.Funding
	OI          *detector.OpenInterest
	MTF         *detector.MultiTimeframe
	Liquidation *detector.Liquidation
	Whale       *detector.Whale
	Correlation *detector.Correlation
	Pattern     *detector.Pattern
	Entry       *detector.EntryTiming
	TopPick     *detector.TopPick
	Sentiment   *detector.Sentiment
}

// Builder produces snapshots on demand.
type Builder struct {
	store    *datastore.Store
	det      Detectors
	engine   *engine.Engine
	tracker  *outcome.Tracker
	filter   *Filter
	notifier *Notifier
	clock    drepo.Clock
	topK     int
}

func NewBuilder(store *datastore.Store, det Detectors, eng *engine.Engine, tracker *outcome.Tracker, filter *Filter, notifier *Notifier, clock drepo.Clock, topK int) *Builder {
	if topK <= 0 {
		topK = 15
	}
	return &Builder{
		store:    store,
		det:      det,
		engine:   eng,
		tracker:  tracker,
		filter:   filter,
		notifier: notifier,
		clock:    clock,
		topK:     topK,
	}
}

// Build assembles one snapshot. Detector caches may lag the store by up
// to one detector cadence; the per-symbol ticker state is consistent.
func (b *Builder) Build() models.Snapshot {
	pass := b.filter.Pass
	k := b.topK

	settings := b.filter.Settings()

	snap := models.Snapshot{
		Connected:   b.store.Connected(),
		SymbolCount: b.store.Count(),
		Timestamp:   b.clock.Now(),

		Volatility:   visible(b.det.Volatility.Detect(), func(a models.VolatilityAlert) string { return a.Symbol }, pass, k),
		Velocity:     visible(b.det.Velocity.Detect(), func(a models.VelocityAlert) string { return a.Symbol }, pass, k),
		Volume:       visible(b.det.Volume.Detect(), func(a models.VolumeAlert) string { return a.Symbol }, pass, k),
		Range:        visible(b.det.Range.Detect(), func(a models.RangeAlert) string { return a.Symbol }, pass, k),
		NewListings:  visible(b.det.NewListing.Detect(), func(a models.NewListingAlert) string { return a.Symbol }, pass, k),
		Funding:      visible(b.det.Funding.Detect(), func(a models.FundingAlert) string { return a.Symbol }, pass, k),
		OpenInterest: visible(b.det.OI.Detect(), func(a models.OpenInterestAlert) string { return a.Symbol }, pass, k),
		MultiTF:      visible(b.det.MTF.Detect(), func(a models.MultiTimeframeAlert) string { return a.Symbol }, pass, k),
		Liquidations: visible(b.det.Liquidation.Detect(), func(a models.LiquidationAlert) string { return a.Symbol }, pass, k),
		Whales:       visible(b.det.Whale.Detect(), func(a models.WhaleAlert) string { return a.Symbol }, pass, k),
		Correlations: visible(b.det.Correlation.Detect(), func(a models.CorrelationAlert) string { return a.Symbol }, pass, k),
		Patterns:     visible(b.det.Pattern.Detect(), func(a models.PatternAlert) string { return a.Symbol }, pass, k),
		EntryTimings: visible(b.det.Entry.Detect(), func(a models.EntryTimingAlert) string { return a.Symbol }, pass, k),
		TopPicks:     visible(b.det.TopPick.Detect(), func(a models.TopPickAlert) string { return a.Symbol }, pass, k),

		Sentiment:     b.det.Sentiment.Market(),
		WinRate:       b.tracker.Report(),
		Recent:        b.tracker.RecentCompleted(recentSignals),
		Notifications: b.notifier.Drain(),

		FilterConfig: settings,
		Watchlist:    settings.Watchlist,
	}

	sym := func(s models.SmartSignal) string { return s.Symbol }
	snap.Signals = models.SignalBuckets{
		Long:     visible(b.engine.TopSignals(0, models.DirectionLong), sym, pass, k),
		Short:    visible(b.engine.TopSignals(0, models.DirectionShort), sym, pass, k),
		Early:    visible(b.engine.EarlyEntries(), sym, pass, k),
		Breakout: visible(b.engine.BreakoutCandidates(), sym, pass, k),
		LowRisk:  visible(b.engine.LowRiskSetups(), sym, pass, k),
		Reversals: visible(b.engine.ReversalSignals(),
			func(r models.ReversalSignal) string { return r.Symbol }, pass, k),
	}
	return snap
}

// visible keeps the first limit items whose symbol passes the filter.
// Inputs are already sorted by their producers.
func visible[T any](items []T, symbolOf func(T) string, pass func(string) bool, limit int) []T {
	out := make([]T, 0, min(limit, len(items)))
	for _, it := range items {
		if len(out) == limit {
			break
		}
		if pass(symbolOf(it)) {
			out = append(out, it)
		}
	}
	return out
}

package models

import "time"

// SignalRecord tracks one emitted signal through its outcome lifecycle:
// PENDING at emit, WIN or LOSS after the evaluation horizon, never back.
type SignalRecord struct {
	ID           string
	Symbol       string
	EntryType    EntryType
	Direction    Direction
	EntryPrice   float64
	Confidence   float64
	Timestamp    time.Time
	Outcome      Outcome
	ExitPrice    float64
	PnLPercent   float64
	EvaluatedAt  time.Time
	Features     *SignalFeatures
	MLPrediction *MLPrediction
}

// WinRateStats aggregates completed-signal outcomes.
type WinRateStats struct {
	TotalSignals int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	AvgWinPct    float64
	AvgLossPct   float64 // negative
	ProfitFactor float64 // sum(wins) / |sum(losses)|
}

// OutcomeReport is the full stats view exposed by the tracker.
type OutcomeReport struct {
	Overall     WinRateStats
	ByEntryType map[EntryType]WinRateStats
	BySymbol    map[string]WinRateStats
	Rolling     WinRateStats // last 20 completed
	Pending     int
}

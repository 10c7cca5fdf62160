package models

import "time"

// Each detector emits its own alert variant. The aggregating layers treat
// them as tagged variants; there is deliberately no shared alert base type.

// VolatilityAlert fires on large 24h moves.
type VolatilityAlert struct {
	Symbol     string
	Change24h  float64
	LastPrice  float64
	IsCritical bool
	Direction  Direction
	Timestamp  time.Time
}

// VelocityAlert fires on fast short-window price moves.
type VelocityAlert struct {
	Symbol    string
	Velocity  float64 // percent per minute
	Trend     TrendState
	LastPrice float64
	Direction Direction
	Timestamp time.Time
}

// VolumeAlert fires when the recent flow rate spikes over its average.
type VolumeAlert struct {
	Symbol      string
	Multiplier  float64
	RecentRate  float64
	AverageRate float64
	QuoteVolume float64
	Direction   Direction
	Timestamp   time.Time
}

// RangePosition locates the last price inside the 24h range.
type RangePosition string

const (
	RangeNearHigh RangePosition = "NEAR_HIGH"
	RangeNearLow  RangePosition = "NEAR_LOW"
	RangeBreaking RangePosition = "BREAKING"
	RangeMiddle   RangePosition = "MIDDLE"
)

// RangeAlert fires on wide 24h ranges.
type RangeAlert struct {
	Symbol    string
	RangePct  float64
	Position  RangePosition
	LastPrice float64
	Direction Direction
	Timestamp time.Time
}

// NewListingAlert tracks a symbol first seen after startup.
type NewListingAlert struct {
	Symbol          string
	FirstPrice      float64
	CurrentPrice    float64
	ChangeFromFirst float64
	FirstSeen       time.Time
	Timestamp       time.Time
}

// FundingSignal classifies a funding-rate reading.
type FundingSignal string

const (
	FundingExtremePositive FundingSignal = "EXTREME_POSITIVE"
	FundingExtremeNegative FundingSignal = "EXTREME_NEGATIVE"
	FundingLongSqueeze     FundingSignal = "LONG_SQUEEZE"
	FundingShortSqueeze    FundingSignal = "SHORT_SQUEEZE"
	FundingNeutral         FundingSignal = "NEUTRAL"
)

func (f FundingSignal) Encode() int {
	switch f {
	case FundingExtremeNegative, FundingLongSqueeze:
		return -1
	case FundingExtremePositive, FundingShortSqueeze:
		return 1
	default:
		return 0
	}
}

// FundingAlert fires on extreme or squeeze-shaped funding.
type FundingAlert struct {
	Symbol    string
	Rate      float64
	Signal    FundingSignal
	Strength  float64 // 0-100 band on magnitude
	Change24h float64
	Direction Direction
	Timestamp time.Time
}

// OISignal classifies an (OI delta, price delta) pair.
type OISignal string

const (
	OIStrongTrend      OISignal = "STRONG_TREND"
	OIBuildingShorts   OISignal = "BUILDING_SHORTS"
	OIBuildingLongs    OISignal = "BUILDING_LONGS"
	OIClosingPositions OISignal = "CLOSING_POSITIONS"
	OINeutral          OISignal = "NEUTRAL"
)

func (o OISignal) Encode() int {
	switch o {
	case OIStrongTrend, OIBuildingLongs:
		return 1
	case OIBuildingShorts, OIClosingPositions:
		return -1
	default:
		return 0
	}
}

// OpenInterestAlert fires on notable open-interest swings.
type OpenInterestAlert struct {
	Symbol      string
	OIChangePct float64
	PriceChange float64
	Signal      OISignal
	Direction   Direction
	Timestamp   time.Time
}

// MomentumState compares move magnitudes across timeframes.
type MomentumState string

const (
	MomentumAccelerating MomentumState = "ACCELERATING"
	MomentumDecelerating MomentumState = "DECELERATING"
	MomentumSteady       MomentumState = "STEADY"
)

// MultiTimeframeAlert summarises 15m/1h/4h agreement for one symbol.
type MultiTimeframeAlert struct {
	Symbol     string
	Change15m  float64
	Change1h   float64
	Change4h   float64
	RSI1h      float64
	Alignment  MTFAlignment
	Divergence DivergenceType
	Momentum   MomentumState
	Direction  Direction
	Timestamp  time.Time
}

// LiquidationIntensity bands the accumulated estimate.
type LiquidationIntensity string

const (
	LiqExtreme LiquidationIntensity = "EXTREME"
	LiqHigh    LiquidationIntensity = "HIGH"
	LiqMedium  LiquidationIntensity = "MEDIUM"
	LiqLow     LiquidationIntensity = "LOW"
)

// LiquidationAlert estimates forced-liquidation notional from public ticker
// data only. This is an inference, not a ground-truth liquidation stream.
type LiquidationAlert struct {
	Symbol       string
	EstimatedUSD float64 // accumulated over the 5-minute window
	EventCount   int
	MovePct      float64
	Intensity    LiquidationIntensity
	Direction    Direction
	Timestamp    time.Time
}

// WhaleActivity classifies an outsized flow event.
type WhaleActivity string

const (
	WhaleAccumulation WhaleActivity = "ACCUMULATION"
	WhaleDistribution WhaleActivity = "DISTRIBUTION"
	WhaleLargeBuy     WhaleActivity = "LARGE_BUY"
	WhaleLargeSell    WhaleActivity = "LARGE_SELL"
)

// WhaleAlert fires on large step-ups in quote-volume flow.
type WhaleAlert struct {
	Symbol     string
	SizeUSD    float64
	Ratio      float64
	Activity   WhaleActivity
	Confidence float64 // 0-100
	Direction  Direction
	Timestamp  time.Time
}

// CorrelationAlert reports BTC decoupling or outperformance.
type CorrelationAlert struct {
	Symbol         string
	Correlation    float64 // Pearson r vs BTC
	AltChange      float64
	BTCChange      float64
	Decoupled      bool
	Outperformance float64 // altΔ - btcΔ when |r| >= 0.3
	Direction      Direction
	Timestamp      time.Time
}

// PatternKind names a detected chart structure.
type PatternKind string

const (
	PatternNone         PatternKind = "NONE"
	PatternNearHigh24h  PatternKind = "NEAR_24H_HIGH"
	PatternNearLow24h   PatternKind = "NEAR_24H_LOW"
	PatternRoundNumber  PatternKind = "ROUND_NUMBER"
	PatternKeyLevel     PatternKind = "KEY_LEVEL"
	PatternDoubleTop    PatternKind = "DOUBLE_TOP"
	PatternDoubleBottom PatternKind = "DOUBLE_BOTTOM"
)

// Encode maps pattern kinds into the 0-8 feature band.
func (p PatternKind) Encode() int {
	switch p {
	case PatternNearHigh24h:
		return 1
	case PatternNearLow24h:
		return 2
	case PatternRoundNumber:
		return 3
	case PatternKeyLevel:
		return 4
	case PatternDoubleTop:
		return 5
	case PatternDoubleBottom:
		return 6
	default:
		return 0
	}
}

// PatternAlert fires near identified key levels or completed formations.
type PatternAlert struct {
	Symbol      string
	Pattern     PatternKind
	Level       float64
	DistancePct float64
	Confidence  float64 // 0-100
	Direction   Direction
	Timestamp   time.Time
}

// EntryTimingAlert proposes a concrete entry with ATR-derived levels.
type EntryTimingAlert struct {
	Symbol     string
	EntryType  EntryType
	Entry      float64
	StopLoss   float64
	TakeProfit [3]float64
	ATR        float64
	ATRPct     float64
	VWAP       float64
	RSI        float64
	RiskReward float64
	Direction  Direction
	Timestamp  time.Time
}

// TopPickAlert is the composite per-symbol ranking entry.
type TopPickAlert struct {
	Symbol    string
	Score     float64
	Reasons   []string
	Direction Direction
	Timestamp time.Time
}

package models

// Direction is the trade side a signal argues for.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Encode maps a direction to the feature-schema integer (+1/-1, 0 neutral).
func (d Direction) Encode() int {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// ComponentDirection is the per-component vote inside a fused signal.
type ComponentDirection string

const (
	ComponentBullish ComponentDirection = "BULLISH"
	ComponentBearish ComponentDirection = "BEARISH"
	ComponentNeutral ComponentDirection = "NEUTRAL"
)

// EntryType labels the trading thesis behind an emitted signal.
// Integer encoding is part of the feature schema and must stay stable.
type EntryType string

const (
	EntryEarly    EntryType = "EARLY"
	EntryMomentum EntryType = "MOMENTUM"
	EntryReversal EntryType = "REVERSAL"
	EntryBreakout EntryType = "BREAKOUT"
)

func (e EntryType) Encode() int {
	switch e {
	case EntryEarly:
		return 0
	case EntryMomentum:
		return 1
	case EntryReversal:
		return 2
	case EntryBreakout:
		return 3
	default:
		return 1
	}
}

// RiskLevel grades a fused signal by component agreement.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

func (r RiskLevel) Encode() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 1
	}
}

// QualityTier is the predictor's own grading of its probability.
type QualityTier string

const (
	TierHigh   QualityTier = "HIGH"
	TierMedium QualityTier = "MEDIUM"
	TierLow    QualityTier = "LOW"
	TierFilter QualityTier = "FILTER"
)

// Outcome is the retrospective label of an emitted signal.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
)

// TrendState classifies velocity against the previous observation.
type TrendState string

const (
	TrendAccelerating TrendState = "ACCELERATING"
	TrendSteady       TrendState = "STEADY"
	TrendDecelerating TrendState = "DECELERATING"
)

func (t TrendState) Encode() int {
	switch t {
	case TrendAccelerating:
		return 1
	case TrendDecelerating:
		return -1
	default:
		return 0
	}
}

// MTFAlignment classifies agreement across the 15m/1h/4h timeframes.
type MTFAlignment string

const (
	AlignStrongBullish MTFAlignment = "STRONG_BULLISH"
	AlignBullish       MTFAlignment = "BULLISH"
	AlignMixed         MTFAlignment = "MIXED"
	AlignBearish       MTFAlignment = "BEARISH"
	AlignStrongBearish MTFAlignment = "STRONG_BEARISH"
)

// Encode maps alignment into the 0-4 integer band of the feature schema.
func (a MTFAlignment) Encode() int {
	switch a {
	case AlignStrongBearish:
		return 0
	case AlignBearish:
		return 1
	case AlignMixed:
		return 2
	case AlignBullish:
		return 3
	case AlignStrongBullish:
		return 4
	default:
		return 2
	}
}

// DivergenceType marks a 15m-vs-4h disagreement.
type DivergenceType string

const (
	DivergenceNone    DivergenceType = "NONE"
	DivergenceBullish DivergenceType = "BULLISH" // short frame up, long frame down
	DivergenceBearish DivergenceType = "BEARISH"
)

func (d DivergenceType) Encode() int {
	switch d {
	case DivergenceBullish:
		return 1
	case DivergenceBearish:
		return -1
	default:
		return 0
	}
}

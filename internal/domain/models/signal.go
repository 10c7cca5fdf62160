package models

import "time"

// SignalComponent is one detector's weighted vote inside a SmartSignal.
type SignalComponent struct {
	Name      string
	Direction ComponentDirection
	Strength  float64 // 0-100
	Weight    int
}

// MLPrediction is the predictor's verdict for one signal.
type MLPrediction struct {
	SignalID       string      `json:"signal_id"`
	WinProbability float64     `json:"win_probability"`
	QualityTier    QualityTier `json:"quality_tier"`
	Confidence     float64     `json:"confidence"`
	ShouldFilter   bool        `json:"should_filter"`
	ModelVersion   string      `json:"model_version"`
}

// SmartSignal is the fused directional signal for one symbol.
type SmartSignal struct {
	ID              string
	Symbol          string
	Direction       Direction
	Confidence      float64 // 0-100, rule-based
	ConfluenceScore float64 // 0-100
	Components      []SignalComponent
	Reasoning       []string
	EntryType       EntryType
	RiskLevel       RiskLevel
	Price           float64
	Timestamp       time.Time

	// Optional ML enhancement; nil when the predictor is unavailable.
	MLPrediction       *MLPrediction
	CombinedConfidence *float64
	QualityTier        QualityTier
}

// ReversalTrigger names one accumulated reversal condition.
type ReversalTrigger string

const (
	TriggerRSIExtreme     ReversalTrigger = "RSI_EXTREME"
	TriggerRSIDivergence  ReversalTrigger = "RSI_DIVERGENCE"
	TriggerExtremeFunding ReversalTrigger = "EXTREME_FUNDING"
	TriggerOIDivergence   ReversalTrigger = "OI_DIVERGENCE"
	TriggerVolumeClimax   ReversalTrigger = "VOLUME_CLIMAX"
)

// ReversalSignal is emitted by the reversal sub-engine, at most one per
// symbol per cycle. Direction is set by the first trigger to fire.
type ReversalSignal struct {
	Symbol     string
	Direction  Direction
	Confidence float64 // additive over triggers, 0-100
	Triggers   []ReversalTrigger
	Price      float64
	Timestamp  time.Time
}

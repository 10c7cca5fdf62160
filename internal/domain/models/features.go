package models

import (
	"fmt"
	"strconv"
)

// FeatureNames is the versioned 35-column schema shared with the predictor
// and the store. Order matters; direction is always the final column.
var FeatureNames = []string{
	"price_change_24h",
	"price_change_1h",
	"price_change_15m",
	"price_change_5m",
	"high_low_range",
	"price_position",
	"volume_quote_24h",
	"volume_multiplier",
	"volume_change_1h",
	"velocity",
	"acceleration",
	"trend_state",
	"rsi_1h",
	"mtf_alignment",
	"divergence_type",
	"funding_rate",
	"funding_signal",
	"funding_direction_match",
	"oi_change_percent",
	"oi_signal",
	"oi_price_alignment",
	"pattern_type",
	"pattern_confidence",
	"distance_from_level",
	"smart_confidence",
	"component_count",
	"entry_type",
	"risk_level",
	"atr_percent",
	"vwap_distance",
	"risk_reward_ratio",
	"whale_activity",
	"btc_correlation",
	"btc_outperformance",
	"direction",
}

// SignalFeatures is the numeric vector extracted at emit time.
// Categorical fields carry the integer encodings of the schema.
type SignalFeatures struct {
	SignalID string `json:"signal_id"`
	Symbol   string `json:"symbol"`

	PriceChange24h float64 `json:"price_change_24h"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange15m float64 `json:"price_change_15m"`
	PriceChange5m  float64 `json:"price_change_5m"`
	HighLowRange   float64 `json:"high_low_range"`
	PricePosition  float64 `json:"price_position"`

	VolumeQuote24h   float64 `json:"volume_quote_24h"`
	VolumeMultiplier float64 `json:"volume_multiplier"`
	VolumeChange1h   float64 `json:"volume_change_1h"`

	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	TrendState   int     `json:"trend_state"`

	RSI1h          float64 `json:"rsi_1h"`
	MTFAlignment   int     `json:"mtf_alignment"`
	DivergenceType int     `json:"divergence_type"`

	FundingRate           float64 `json:"funding_rate"`
	FundingSignal         int     `json:"funding_signal"`
	FundingDirectionMatch int     `json:"funding_direction_match"`

	OIChangePercent  float64 `json:"oi_change_percent"`
	OISignal         int     `json:"oi_signal"`
	OIPriceAlignment int     `json:"oi_price_alignment"`

	PatternType       int     `json:"pattern_type"`
	PatternConfidence float64 `json:"pattern_confidence"`
	DistanceFromLevel float64 `json:"distance_from_level"`

	SmartConfidence float64 `json:"smart_confidence"`
	ComponentCount  int     `json:"component_count"`
	EntryType       int     `json:"entry_type"`
	RiskLevel       int     `json:"risk_level"`

	ATRPercent      float64 `json:"atr_percent"`
	VWAPDistance    float64 `json:"vwap_distance"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`

	WhaleActivity     float64 `json:"whale_activity"`
	BTCCorrelation    float64 `json:"btc_correlation"`
	BTCOutperformance float64 `json:"btc_outperformance"`

	Direction int `json:"direction"` // +1 LONG, -1 SHORT
}

// Vector returns the features as a float slice in schema order.
func (f *SignalFeatures) Vector() []float64 {
	return []float64{
		f.PriceChange24h,
		f.PriceChange1h,
		f.PriceChange15m,
		f.PriceChange5m,
		f.HighLowRange,
		f.PricePosition,
		f.VolumeQuote24h,
		f.VolumeMultiplier,
		f.VolumeChange1h,
		f.Velocity,
		f.Acceleration,
		float64(f.TrendState),
		f.RSI1h,
		float64(f.MTFAlignment),
		float64(f.DivergenceType),
		f.FundingRate,
		float64(f.FundingSignal),
		float64(f.FundingDirectionMatch),
		f.OIChangePercent,
		float64(f.OISignal),
		float64(f.OIPriceAlignment),
		float64(f.PatternType),
		f.PatternConfidence,
		f.DistanceFromLevel,
		f.SmartConfidence,
		float64(f.ComponentCount),
		float64(f.EntryType),
		float64(f.RiskLevel),
		f.ATRPercent,
		f.VWAPDistance,
		f.RiskRewardRatio,
		f.WhaleActivity,
		f.BTCCorrelation,
		f.BTCOutperformance,
		float64(f.Direction),
	}
}

// FromVector rebuilds a SignalFeatures from a schema-ordered slice.
func FromVector(v []float64) (*SignalFeatures, error) {
	if len(v) != len(FeatureNames) {
		return nil, fmt.Errorf("feature vector: want %d columns, got %d", len(FeatureNames), len(v))
	}
	f := &SignalFeatures{
		PriceChange24h:        v[0],
		PriceChange1h:         v[1],
		PriceChange15m:        v[2],
		PriceChange5m:         v[3],
		HighLowRange:          v[4],
		PricePosition:         v[5],
		VolumeQuote24h:        v[6],
		VolumeMultiplier:      v[7],
		VolumeChange1h:        v[8],
		Velocity:              v[9],
		Acceleration:          v[10],
		TrendState:            int(v[11]),
		RSI1h:                 v[12],
		MTFAlignment:          int(v[13]),
		DivergenceType:        int(v[14]),
		FundingRate:           v[15],
		FundingSignal:         int(v[16]),
		FundingDirectionMatch: int(v[17]),
		OIChangePercent:       v[18],
		OISignal:              int(v[19]),
		OIPriceAlignment:      int(v[20]),
		PatternType:           int(v[21]),
		PatternConfidence:     v[22],
		DistanceFromLevel:     v[23],
		SmartConfidence:       v[24],
		ComponentCount:        int(v[25]),
		EntryType:             int(v[26]),
		RiskLevel:             int(v[27]),
		ATRPercent:            v[28],
		VWAPDistance:          v[29],
		RiskRewardRatio:       v[30],
		WhaleActivity:         v[31],
		BTCCorrelation:        v[32],
		BTCOutperformance:     v[33],
		Direction:             int(v[34]),
	}
	return f, nil
}

// CSVRow serialises the vector with full float precision so an export
// followed by re-ingestion reproduces identical values.
func (f *SignalFeatures) CSVRow() []string {
	v := f.Vector()
	row := make([]string, 0, len(v))
	for _, x := range v {
		row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
	}
	return row
}

// parseCSVRow parses a row produced by CSVRow.
func parseCSVRow(row []string) (*SignalFeatures, error) {
	if len(row) != len(FeatureNames) {
		return nil, fmt.Errorf("csv row: want %d columns, got %d", len(FeatureNames), len(row))
	}
	v := make([]float64, 0, len(row))
	for i, s := range row {
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse column %s: %w", FeatureNames[i], err)
		}
		v = append(v, x)
	}
	return FromVector(v)
}

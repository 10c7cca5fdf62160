package models

import "time"

// SentimentLabel bands a 0-100 greed/fear composite.
type SentimentLabel string

const (
	SentimentExtremeFear  SentimentLabel = "EXTREME_FEAR"
	SentimentFear         SentimentLabel = "FEAR"
	SentimentNeutralLabel SentimentLabel = "NEUTRAL"
	SentimentGreed        SentimentLabel = "GREED"
	SentimentExtremeGreed SentimentLabel = "EXTREME_GREED"
)

// LabelForScore maps a composite score onto its band.
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score < 20:
		return SentimentExtremeFear
	case score < 40:
		return SentimentFear
	case score < 60:
		return SentimentNeutralLabel
	case score < 80:
		return SentimentGreed
	default:
		return SentimentExtremeGreed
	}
}

// SymbolSentiment is the per-symbol greed/fear composite.
type SymbolSentiment struct {
	Symbol    string
	Score     float64 // 0-100
	Label     SentimentLabel
	Timestamp time.Time
}

// MarketSentiment aggregates the whole market plus the strongest movers.
type MarketSentiment struct {
	Score     float64 // 0-100
	Label     SentimentLabel
	Breadth   float64 // fraction of symbols positive on 24h
	Symbols   []SymbolSentiment
	Timestamp time.Time
}

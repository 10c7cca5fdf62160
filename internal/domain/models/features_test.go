package models

import (
	"bytes"
	"encoding/csv"
	"math"
	"testing"
)

func sampleFeatures() *SignalFeatures {
	return &SignalFeatures{
		SignalID:              "sig-1",
		Symbol:                "BTCUSDT",
		PriceChange24h:        11.37,
		PriceChange1h:         1.0 / 3.0,
		PriceChange15m:        -0.42,
		PriceChange5m:         0.051,
		HighLowRange:          13.13,
		PricePosition:         0.923,
		VolumeQuote24h:        2.4e8,
		VolumeMultiplier:      4.0,
		VolumeChange1h:        17.5,
		Velocity:              -0.031,
		Acceleration:          0.0007,
		TrendState:            1,
		RSI1h:                 71.83,
		MTFAlignment:          2,
		DivergenceType:        -1,
		FundingRate:           0.0125,
		FundingSignal:         1,
		FundingDirectionMatch: 1,
		OIChangePercent:       -2.71828,
		OISignal:              3,
		OIPriceAlignment:      -1,
		PatternType:           2,
		PatternConfidence:     66.6,
		DistanceFromLevel:     1.414213562,
		SmartConfidence:       70.17,
		ComponentCount:        5,
		EntryType:             1,
		RiskLevel:             2,
		ATRPercent:            2.35,
		VWAPDistance:          -0.89,
		RiskRewardRatio:       2.5,
		WhaleActivity:         0.33,
		BTCCorrelation:        0.07,
		BTCOutperformance:     3.2,
		Direction:             -1,
	}
}

// Exported rows must survive a write/read cycle with every column equal
// within 1e-9.
func TestCSVRowRoundTrip(t *testing.T) {
	f := sampleFeatures()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(f.CSVRow()); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	got, err := parseCSVRow(rows[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := f.Vector()
	for i, x := range got.Vector() {
		if math.Abs(x-want[i]) > 1e-9 {
			t.Fatalf("column %s = %v, want %v", FeatureNames[i], x, want[i])
		}
	}
	if got.Direction != f.Direction || got.EntryType != f.EntryType {
		t.Fatalf("categorical encodings lost: %+v", got)
	}
}

func TestParseCSVRowRejectsMalformedRows(t *testing.T) {
	long := make([]string, len(FeatureNames)+5)
	for i := range long {
		long[i] = "1"
	}
	if _, err := parseCSVRow(long); err == nil {
		t.Fatalf("oversized row must be rejected")
	}
	if _, err := parseCSVRow(make([]string, len(FeatureNames)-1)); err == nil {
		t.Fatalf("short row must be rejected")
	}

	bad := sampleFeatures().CSVRow()
	bad[3] = "not-a-number"
	if _, err := parseCSVRow(bad); err == nil {
		t.Fatalf("non-numeric column must be rejected")
	}
}

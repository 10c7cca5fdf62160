package models

import "time"

// Ticker is a point-in-time 24h snapshot of one futures symbol.
type Ticker struct {
	Symbol         string
	LastPrice      float64
	OpenPrice      float64
	HighPrice      float64
	LowPrice       float64
	PriceChangePct float64 // 24h change, percent
	BaseVolume     float64
	QuoteVolume    float64 // cumulative 24h quote volume
	TradeCount     int64
	EventTime      time.Time
}

// PricePoint is one sample of a symbol's rolling price history.
type PricePoint struct {
	Price float64
	TS    time.Time
}

// VolumePoint is one sample of cumulative 24h quote volume.
type VolumePoint struct {
	QuoteVolume float64
	TS          time.Time
}

// Candle is one OHLCV bar returned by the exchange REST API.
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// FundingRate is the current funding state of one perpetual symbol.
type FundingRate struct {
	Symbol          string
	Rate            float64 // percent per funding interval
	MarkPrice       float64
	NextFundingTime time.Time
}

// OpenInterest is the outstanding notional of one symbol.
type OpenInterest struct {
	Symbol string
	Value  float64
	TS     time.Time
}

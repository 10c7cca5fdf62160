package models

import "time"

// Notification is one queued dashboard event.
type Notification struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalBuckets groups fused signals the way the dashboard consumes them.
type SignalBuckets struct {
	Long      []SmartSignal    `json:"long"`
	Short     []SmartSignal    `json:"short"`
	Early     []SmartSignal    `json:"early"`
	Breakout  []SmartSignal    `json:"breakout"`
	LowRisk   []SmartSignal    `json:"lowRisk"`
	Reversals []ReversalSignal `json:"reversals"`
}

// Snapshot is the immutable document published to subscribers on every
// snapshot tick. It copies; it never shares mutable references.
type Snapshot struct {
	Connected   bool      `json:"connected"`
	SymbolCount int       `json:"symbolCount"`
	Timestamp   time.Time `json:"timestamp"`

	Volatility   []VolatilityAlert     `json:"volatility"`
	Velocity     []VelocityAlert       `json:"velocity"`
	Volume       []VolumeAlert         `json:"volume"`
	Range        []RangeAlert          `json:"range"`
	NewListings  []NewListingAlert     `json:"newListings"`
	Funding      []FundingAlert        `json:"funding"`
	OpenInterest []OpenInterestAlert   `json:"openInterest"`
	MultiTF      []MultiTimeframeAlert `json:"multiTimeframe"`
	Liquidations []LiquidationAlert    `json:"liquidations"`
	Whales       []WhaleAlert          `json:"whales"`
	Correlations []CorrelationAlert    `json:"correlations"`
	Patterns     []PatternAlert        `json:"patterns"`
	EntryTimings []EntryTimingAlert    `json:"entryTimings"`
	TopPicks     []TopPickAlert        `json:"topPicks"`

	Signals       SignalBuckets   `json:"signals"`
	Sentiment     MarketSentiment `json:"sentiment"`
	WinRate       OutcomeReport   `json:"winRate"`
	Recent        []SignalRecord  `json:"recentSignals"` // last 10 completed
	Notifications []Notification  `json:"notifications"`

	FilterConfig FilterSettings `json:"filterConfig"`
	Watchlist    []string       `json:"watchlist"`
}

// FilterSettings is the symbol filter configuration echoed in snapshots.
type FilterSettings struct {
	Preset             string   `json:"preset"`
	MinVolume24h       float64  `json:"minVolume24h"`
	MinChange24h       float64  `json:"minChange24h"`
	OnlyQuote          string   `json:"onlyQuote"`
	ExcludeStablecoins bool     `json:"excludeStablecoins"`
	Excluded           []string `json:"excluded"`
	Watchlist          []string `json:"watchlist"`
}

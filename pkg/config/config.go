package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Exchange struct {
		StreamURL      string        `yaml:"stream_url"`
		RESTTimeout    time.Duration `yaml:"rest_timeout"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		Testnet        bool          `yaml:"testnet"`
	} `yaml:"exchange"`
	Volatility struct {
		MinChange24h      float64 `yaml:"min_change_24h"`
		CriticalChange24h float64 `yaml:"critical_change_24h"`
	} `yaml:"volatility"`
	Volume struct {
		SpikeMultiplier  float64 `yaml:"spike_multiplier"`
		AvgWindowMinutes int     `yaml:"avg_window_minutes"`
		MinQuoteVolume   float64 `yaml:"min_quote_volume"`
	} `yaml:"volume"`
	Velocity struct {
		MinVelocity           float64 `yaml:"min_velocity"`
		WindowMinutes         int     `yaml:"window_minutes"`
		AccelerationThreshold float64 `yaml:"acceleration_threshold"`
	} `yaml:"velocity"`
	Range struct {
		MinRange float64 `yaml:"min_range"`
	} `yaml:"range"`
	Cadence struct {
		Funding      time.Duration `yaml:"funding"`
		OpenInterest time.Duration `yaml:"open_interest"`
		MultiTF      time.Duration `yaml:"multi_tf"`
		Pattern      time.Duration `yaml:"pattern"`
		EntryTiming  time.Duration `yaml:"entry_timing"`
		Correlation  time.Duration `yaml:"correlation"`
		Whale        time.Duration `yaml:"whale"`
		TopPick      time.Duration `yaml:"top_pick"`
		Liquidation  time.Duration `yaml:"liquidation"`
		Snapshot     time.Duration `yaml:"snapshot"`
		Outcome      time.Duration `yaml:"outcome"`
	} `yaml:"cadence"`
	Outcome struct {
		EmitThreshold    float64       `yaml:"emit_threshold"`
		EvaluationTimeMs int64         `yaml:"evaluation_time_ms"`
		SavePulse        time.Duration `yaml:"save_pulse"`
	} `yaml:"outcome"`
	ML struct {
		Enabled               bool          `yaml:"enabled"`
		ServiceURL            string        `yaml:"service_url"`
		Timeout               time.Duration `yaml:"timeout"`
		CacheTTL              time.Duration `yaml:"cache_ttl"`
		HealthTTL             time.Duration `yaml:"health_ttl"`
		MLWeight              float64       `yaml:"ml_weight"`
		RuleWeight            float64       `yaml:"rule_weight"`
		FilterThreshold       float64       `yaml:"filter_threshold"`
		MinSignalsForTraining int           `yaml:"min_signals_for_training"`
		TrainEvery            time.Duration `yaml:"train_every"`
		Redis                 struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"ml"`
	UI struct {
		RefreshMs    int    `yaml:"refresh_ms"`
		MaxDisplayed int    `yaml:"max_displayed"`
		FilterPreset string `yaml:"filter_preset"`
	} `yaml:"ui"`
	Filter struct {
		MinVolume24h       float64  `yaml:"min_volume_24h"`
		MinChange24h       float64  `yaml:"min_change_24h"`
		OnlyQuote          string   `yaml:"only_quote"`
		ExcludeStablecoins bool     `yaml:"exclude_stablecoins"`
		Excluded           []string `yaml:"excluded"`
		Watchlist          []string `yaml:"watchlist"`
	} `yaml:"filter"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	LogCollector struct {
		Enabled        bool          `yaml:"enabled"`
		Topic          string        `yaml:"topic"`
		Interval       time.Duration `yaml:"interval"`
		CountThreshold int           `yaml:"count_threshold"`
	} `yaml:"log_collector"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic"`
		AlertTopic   string   `yaml:"alert_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
	} `yaml:"kafka"`
}

// Load reads and parses a YAML configuration file, applies defaults and
// validates bounds. Invalid configuration is fatal at startup only.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STREAM_URL"); v != "" {
		c.Exchange.StreamURL = v
	}
	if v := os.Getenv("ML_SERVICE_URL"); v != "" {
		c.ML.ServiceURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Filter.Watchlist = strings.Split(v, ",")
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Exchange.StreamURL == "" {
		c.Exchange.StreamURL = "wss://fstream.binance.com/ws/!ticker@arr"
	}
	if c.Exchange.RESTTimeout == 0 {
		c.Exchange.RESTTimeout = 10 * time.Second
	}
	if c.Exchange.ReconnectDelay == 0 {
		c.Exchange.ReconnectDelay = 5 * time.Second
	}
	if c.Volatility.MinChange24h == 0 {
		c.Volatility.MinChange24h = 10
	}
	if c.Volatility.CriticalChange24h == 0 {
		c.Volatility.CriticalChange24h = 25
	}
	if c.Volume.SpikeMultiplier == 0 {
		c.Volume.SpikeMultiplier = 3
	}
	if c.Volume.AvgWindowMinutes == 0 {
		c.Volume.AvgWindowMinutes = 60
	}
	if c.Volume.MinQuoteVolume == 0 {
		c.Volume.MinQuoteVolume = 1_000_000
	}
	if c.Velocity.MinVelocity == 0 {
		c.Velocity.MinVelocity = 0.5
	}
	if c.Velocity.WindowMinutes == 0 {
		c.Velocity.WindowMinutes = 5
	}
	if c.Velocity.AccelerationThreshold == 0 {
		c.Velocity.AccelerationThreshold = 0.1
	}
	if c.Range.MinRange == 0 {
		c.Range.MinRange = 15
	}
	cad := &c.Cadence
	if cad.Funding == 0 {
		cad.Funding = 120 * time.Second
	}
	if cad.OpenInterest == 0 {
		cad.OpenInterest = 120 * time.Second
	}
	if cad.MultiTF == 0 {
		cad.MultiTF = 60 * time.Second
	}
	if cad.Pattern == 0 {
		cad.Pattern = 60 * time.Second
	}
	if cad.EntryTiming == 0 {
		cad.EntryTiming = 30 * time.Second
	}
	if cad.Correlation == 0 {
		cad.Correlation = 30 * time.Second
	}
	if cad.Whale == 0 {
		cad.Whale = 10 * time.Second
	}
	if cad.TopPick == 0 {
		cad.TopPick = 5 * time.Second
	}
	if cad.Liquidation == 0 {
		cad.Liquidation = 5 * time.Second
	}
	if cad.Snapshot == 0 {
		cad.Snapshot = 2 * time.Second
	}
	if cad.Outcome == 0 {
		cad.Outcome = 15 * time.Second
	}
	if c.Outcome.EmitThreshold == 0 {
		c.Outcome.EmitThreshold = 60
	}
	if c.Outcome.EvaluationTimeMs == 0 {
		c.Outcome.EvaluationTimeMs = 15 * 60 * 1000
	}
	if c.Outcome.SavePulse == 0 {
		c.Outcome.SavePulse = 30 * time.Second
	}
	if c.ML.Timeout == 0 {
		c.ML.Timeout = 2 * time.Second
	}
	if c.ML.CacheTTL == 0 {
		c.ML.CacheTTL = 5 * time.Second
	}
	if c.ML.HealthTTL == 0 {
		c.ML.HealthTTL = 30 * time.Second
	}
	if c.ML.MLWeight == 0 {
		c.ML.MLWeight = 0.6
	}
	if c.ML.RuleWeight == 0 {
		c.ML.RuleWeight = 0.4
	}
	if c.ML.FilterThreshold == 0 {
		c.ML.FilterThreshold = 0.35
	}
	if c.ML.MinSignalsForTraining == 0 {
		c.ML.MinSignalsForTraining = 100
	}
	if c.ML.TrainEvery == 0 {
		c.ML.TrainEvery = 30 * time.Minute
	}
	if c.ML.Redis.Port == 0 {
		c.ML.Redis.Port = 6379
	}
	if c.UI.RefreshMs == 0 {
		c.UI.RefreshMs = 2000
	}
	if c.UI.MaxDisplayed == 0 {
		c.UI.MaxDisplayed = 15
	}
	if c.UI.FilterPreset == "" {
		c.UI.FilterPreset = "all"
	}
	if c.Filter.OnlyQuote == "" {
		c.Filter.OnlyQuote = "USDT"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.LogCollector.Topic == "" {
		c.LogCollector.Topic = "pulsescan.logs"
	}
	if c.LogCollector.Interval == 0 {
		c.LogCollector.Interval = 30 * time.Second
	}
	if c.LogCollector.CountThreshold == 0 {
		c.LogCollector.CountThreshold = 100
	}
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Exchange.StreamURL == "" {
		return fmt.Errorf("exchange.stream_url is required")
	}
	if c.Volatility.CriticalChange24h < c.Volatility.MinChange24h {
		return fmt.Errorf("volatility.critical_change_24h must be >= min_change_24h")
	}
	if c.Volume.SpikeMultiplier < 1 {
		return fmt.Errorf("volume.spike_multiplier must be >= 1")
	}
	if c.Outcome.EmitThreshold < 0 || c.Outcome.EmitThreshold > 100 {
		return fmt.Errorf("outcome.emit_threshold must be within [0,100]")
	}
	if c.ML.Enabled {
		if c.ML.ServiceURL == "" {
			return fmt.Errorf("ml.service_url is required when ml.enabled")
		}
		if c.ML.MLWeight < 0 || c.ML.RuleWeight < 0 {
			return fmt.Errorf("ml weights must be non-negative")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.enabled")
	}
	if c.LogCollector.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("log_collector requires redis.enabled")
	}
	return nil
}

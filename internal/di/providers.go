package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PulseScan/internal/datastore"
	"PulseScan/internal/detector"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/internal/engine"
	"PulseScan/internal/handler/api"
	"PulseScan/internal/handler/ws"
	"PulseScan/internal/outcome"
	internalrepo "PulseScan/internal/repository"
	"PulseScan/internal/scheduler"
	"PulseScan/internal/service/binance"
	"PulseScan/internal/service/predictor"
	"PulseScan/internal/snapshot"
	"PulseScan/pkg/cache"
	pkgch "PulseScan/pkg/clickhouse"
	"PulseScan/pkg/config"
	pkgkafka "PulseScan/pkg/kafka"
	"PulseScan/pkg/logger"
	"PulseScan/pkg/metrics"
	"PulseScan/pkg/queue"
	"PulseScan/pkg/server"
	"PulseScan/pkg/util"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideClock provides the wall clock.
func ProvideClock() drepo.Clock {
	return util.SystemClock{}
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideDataStore creates the in-memory market state store.
func ProvideDataStore(cfg *config.Config, clock drepo.Clock) *datastore.Store {
	return datastore.New(clock,
		time.Duration(cfg.Velocity.WindowMinutes)*time.Minute,
		time.Duration(cfg.Volume.AvgWindowMinutes)*time.Minute,
	)
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSignalStore creates the ClickHouse signal store and runs its
// schema migration.
func ProvideSignalStore(chClient *pkgch.Client, log *logger.Logger) (drepo.SignalStore, error) {
	store := internalrepo.NewSignalStore(chClient, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher creates the Kafka signal publisher, or nil
// when Kafka is disabled.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SignalTopic, cfg.Kafka.AlertTopic)
}

// ProvideOpsQueue creates the Redis ops queue used for aggregated log
// shipping, or nil when Redis is disabled.
func ProvideOpsQueue(cfg *config.Config, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return queue.NewRedisQueue(log, &queue.QueueConfig{}, client, queue.ModeProducerOnly)
}

// ProvidePredictor creates the ML scoring client, or nil when ML is
// disabled. Predictions are cached in Redis when configured, otherwise
// in memory.
func ProvidePredictor(cfg *config.Config, clock drepo.Clock, log *logger.Logger) (drepo.Predictor, error) {
	if !cfg.ML.Enabled {
		return nil, nil
	}

	var store cache.Service
	if cfg.ML.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.ML.Redis.Host),
			cache.WithRedisPort(cfg.ML.Redis.Port),
			cache.WithRedisPassword(cfg.ML.Redis.Password),
			cache.WithRedisDB(cfg.ML.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		// memory L1 in front of Redis keeps the hot path off the network
		store = cache.NewLayeredCache(redisCache)
	} else {
		store = cache.NewMemoryCache()
	}

	return predictor.New(predictor.Config{
		BaseURL:   cfg.ML.ServiceURL,
		Timeout:   cfg.ML.Timeout,
		CacheTTL:  cfg.ML.CacheTTL,
		HealthTTL: cfg.ML.HealthTTL,
	}, store, clock, log), nil
}

// ProvideStream creates the exchange WebSocket ticker stream.
func ProvideStream(cfg *config.Config, log *logger.Logger) drepo.TickerStream {
	return binance.NewStream(cfg.Exchange.StreamURL, 0, log)
}

// ProvideREST creates the exchange REST client.
func ProvideREST(cfg *config.Config, log *logger.Logger) drepo.ExchangeREST {
	return binance.NewREST(cfg.Exchange.Testnet, cfg.Exchange.RESTTimeout, log)
}

// ProvideDetectors builds the full detector set. Construction order
// follows the read dependencies: sentiment and top pick read the
// others.
func ProvideDetectors(store *datastore.Store, rest drepo.ExchangeREST, clock drepo.Clock, cfg *config.Config) snapshot.Detectors {
	volatility := detector.NewVolatility(store, clock, cfg.Volatility.MinChange24h, cfg.Volatility.CriticalChange24h)
	velocity := detector.NewVelocity(store, clock, cfg.Velocity.MinVelocity, cfg.Velocity.AccelerationThreshold)
	volume := detector.NewVolume(store, clock, cfg.Volume.SpikeMultiplier, cfg.Volume.MinQuoteVolume)
	rangeDet := detector.NewRange(store, clock, cfg.Range.MinRange)
	newListing := detector.NewNewListing(store, clock)
	funding := detector.NewFunding(store, rest, clock)
	oi := detector.NewOpenInterest(store, rest, clock)
	mtf := detector.NewMultiTimeframe(store, rest, clock)
	liquidation := detector.NewLiquidation(store, clock)
	whale := detector.NewWhale(store, clock)
	correlation := detector.NewCorrelation(store, clock)
	pattern := detector.NewPattern(store, rest, clock)
	entry := detector.NewEntryTiming(store, rest, clock)
	topPick := detector.NewTopPick(store, clock, volume, velocity, funding, oi, mtf, pattern, entry)
	sentiment := detector.NewSentiment(store, clock, funding, velocity, oi)

	return snapshot.Detectors{
		Volatility:  volatility,
		Velocity:    velocity,
		Volume:      volume,
		Range:       rangeDet,
		NewListing:  newListing,
		Funding:     funding,
		OI:          oi,
		MTF:         mtf,
		Liquidation: liquidation,
		Whale:       whale,
		Correlation: correlation,
		Pattern:     pattern,
		Entry:       entry,
		TopPick:     topPick,
		Sentiment:   sentiment,
	}
}

// ProvideEngine creates the signal fusion engine.
func ProvideEngine(
	store *datastore.Store,
	clock drepo.Clock,
	det snapshot.Detectors,
	pred drepo.Predictor,
	log *logger.Logger,
	m drepo.Metrics,
	cfg *config.Config,
) *engine.Engine {
	return engine.New(store, clock, engine.Detectors{
		Volume:      det.Volume,
		Velocity:    det.Velocity,
		Funding:     det.Funding,
		OI:          det.OI,
		MTF:         det.MTF,
		Pattern:     det.Pattern,
		Entry:       det.Entry,
		Whale:       det.Whale,
		Correlation: det.Correlation,
	}, pred, log, m, engine.Config{
		EmitThreshold: cfg.Outcome.EmitThreshold,
		WeightML:      cfg.ML.MLWeight,
		WeightRule:    cfg.ML.RuleWeight,
	})
}

// ProvideTracker creates the outcome tracker.
func ProvideTracker(store *datastore.Store, sink drepo.SignalStore, clock drepo.Clock, log *logger.Logger, cfg *config.Config) *outcome.Tracker {
	return outcome.New(store, sink, clock, log, outcome.Config{
		EmitThreshold:  cfg.Outcome.EmitThreshold,
		EvaluationTime: time.Duration(cfg.Outcome.EvaluationTimeMs) * time.Millisecond,
	})
}

// ProvideFilter creates the symbol visibility filter from the
// configured preset, with YAML overrides layered on top.
func ProvideFilter(store *datastore.Store, cfg *config.Config) *snapshot.Filter {
	settings, ok := snapshot.Preset(cfg.UI.FilterPreset)
	if !ok {
		settings.Preset = "custom"
		settings.MinVolume24h = cfg.Filter.MinVolume24h
		settings.MinChange24h = cfg.Filter.MinChange24h
		settings.OnlyQuote = cfg.Filter.OnlyQuote
		settings.ExcludeStablecoins = cfg.Filter.ExcludeStablecoins
	}
	settings.Excluded = append(settings.Excluded, cfg.Filter.Excluded...)
	settings.Watchlist = append(settings.Watchlist, cfg.Filter.Watchlist...)
	return snapshot.NewFilter(store, settings)
}

// ProvideNotifier creates the notification buffer.
func ProvideNotifier(clock drepo.Clock) *snapshot.Notifier {
	return snapshot.NewNotifier(clock)
}

// ProvideBuilder creates the snapshot builder.
func ProvideBuilder(
	store *datastore.Store,
	det snapshot.Detectors,
	eng *engine.Engine,
	tracker *outcome.Tracker,
	filter *snapshot.Filter,
	notifier *snapshot.Notifier,
	clock drepo.Clock,
	cfg *config.Config,
) *snapshot.Builder {
	return snapshot.NewBuilder(store, det, eng, tracker, filter, notifier, clock, cfg.UI.MaxDisplayed)
}

// ProvideScheduler creates the run loop with persistence and model
// training attached.
func ProvideScheduler(
	stream drepo.TickerStream,
	store *datastore.Store,
	det snapshot.Detectors,
	eng *engine.Engine,
	tracker *outcome.Tracker,
	builder *snapshot.Builder,
	notifier *snapshot.Notifier,
	publisher drepo.SignalPublisher,
	m drepo.Metrics,
	log *logger.Logger,
	clock drepo.Clock,
	sink drepo.SignalStore,
	pred drepo.Predictor,
	cfg *config.Config,
) *scheduler.Scheduler {
	sched := scheduler.New(stream, store, det, eng, tracker, builder, notifier, publisher, m, log, clock,
		scheduler.Cadences{
			Funding:      cfg.Cadence.Funding,
			OpenInterest: cfg.Cadence.OpenInterest,
			MultiTF:      cfg.Cadence.MultiTF,
			Pattern:      cfg.Cadence.Pattern,
			EntryTiming:  cfg.Cadence.EntryTiming,
			Correlation:  cfg.Cadence.Correlation,
			Whale:        cfg.Cadence.Whale,
			TopPick:      cfg.Cadence.TopPick,
			Liquidation:  cfg.Cadence.Liquidation,
			Snapshot:     cfg.Cadence.Snapshot,
			Outcome:      cfg.Cadence.Outcome,
		},
		cfg.Exchange.ReconnectDelay,
	)
	if sink != nil {
		sched.WithPersistence(sink, cfg.Outcome.SavePulse)
		if pred != nil {
			trainer := outcome.NewTrainer(sink, pred, log, cfg.ML.MinSignalsForTraining)
			sched.WithTrainer(trainer, cfg.ML.TrainEvery)
		}
	}
	return sched
}

// ProvideDashboardHandler creates the REST handler.
func ProvideDashboardHandler(
	log *logger.Logger,
	store *datastore.Store,
	builder *snapshot.Builder,
	filter *snapshot.Filter,
	eng *engine.Engine,
	tracker *outcome.Tracker,
	sink drepo.SignalStore,
	pred drepo.Predictor,
) *api.DashboardHandler {
	return api.NewDashboardHandler(log, store, builder, filter, eng, tracker, sink, pred)
}

// ProvideWSHandler creates the snapshot WebSocket handler.
func ProvideWSHandler(log *logger.Logger, sched *scheduler.Scheduler, builder *snapshot.Builder) *ws.Handler {
	return ws.NewHandler(log, sched, builder)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sched *scheduler.Scheduler,
	apiHandler *api.DashboardHandler,
	wsHandler *ws.Handler,
	chClient *pkgch.Client,
	publisher drepo.SignalPublisher,
	opsQueue *queue.RedisQueue,
) *server.App {
	return server.New(cfg, log, sched, apiHandler, wsHandler, chClient, publisher, opsQueue)
}

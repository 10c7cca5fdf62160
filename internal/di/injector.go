//go:build !wireinject
// +build !wireinject

package di

import (
	"PulseScan/pkg/config"
	"PulseScan/pkg/server"
)

// InitializeApp builds the object graph by hand, mirroring wire.Build in
// wire.go. Running `wire` in this package emits a wire_gen.go with the
// same graph; delete this file when switching to the generated one.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	clock := ProvideClock()
	metrics := ProvideMetrics()
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	redisQueue := ProvideOpsQueue(cfg, logger)
	signalStore, err := ProvideSignalStore(client, logger)
	if err != nil {
		return nil, err
	}
	signalPublisher := ProvideSignalPublisher(producer, cfg)
	predictor, err := ProvidePredictor(cfg, clock, logger)
	if err != nil {
		return nil, err
	}
	tickerStream := ProvideStream(cfg, logger)
	exchangeREST := ProvideREST(cfg, logger)
	store := ProvideDataStore(cfg, clock)
	detectors := ProvideDetectors(store, exchangeREST, clock, cfg)
	engine := ProvideEngine(store, clock, detectors, predictor, logger, metrics, cfg)
	tracker := ProvideTracker(store, signalStore, clock, logger, cfg)
	filter := ProvideFilter(store, cfg)
	notifier := ProvideNotifier(clock)
	builder := ProvideBuilder(store, detectors, engine, tracker, filter, notifier, clock, cfg)
	scheduler := ProvideScheduler(tickerStream, store, detectors, engine, tracker, builder, notifier, signalPublisher, metrics, logger, clock, signalStore, predictor, cfg)
	dashboardHandler := ProvideDashboardHandler(logger, store, builder, filter, engine, tracker, signalStore, predictor)
	wsHandler := ProvideWSHandler(logger, scheduler, builder)
	app := ProvideApp(cfg, logger, scheduler, dashboardHandler, wsHandler, client, signalPublisher, redisQueue)
	return app, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PulseScan/pkg/config"
	"PulseScan/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideClock,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideOpsQueue,
		ProvideSignalStore,
		ProvideSignalPublisher,
		ProvidePredictor,
		ProvideStream,
		ProvideREST,

		// Market state and detection
		ProvideDataStore,
		ProvideDetectors,
		ProvideEngine,
		ProvideTracker,
		ProvideFilter,
		ProvideNotifier,
		ProvideBuilder,
		ProvideScheduler,

		// HTTP surface
		ProvideDashboardHandler,
		ProvideWSHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

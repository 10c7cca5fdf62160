package repository

import (
	"context"
	"io"
	"time"

	"PulseScan/internal/domain/models"
)

// Clock is the injectable time source. Detectors and the tracker must not
// read the wall clock directly or outcome evaluation becomes untestable.
type Clock interface {
	Now() time.Time
}

// TickerStream is the inbound exchange WebSocket port. Read delivers whole
// ticker batches; a batch is applied atomically by the ingest loop.
type TickerStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan []models.Ticker, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ExchangeREST is the outbound exchange query port used by detectors.
type ExchangeREST interface {
	GetFundingRates(ctx context.Context) ([]models.FundingRate, error)
	GetOpenInterest(ctx context.Context, symbol string) (models.OpenInterest, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	GetSymbolRSI(ctx context.Context, symbol, interval string) (float64, error)
}

// Predictor is the outbound ML port. Implementations must degrade silently:
// a failed or slow call means no enhancement, never a failed signal.
type Predictor interface {
	Predict(ctx context.Context, features *models.SignalFeatures) (*models.MLPrediction, error)
	Train(ctx context.Context, rows []*models.SignalRecord) error
	Healthy(ctx context.Context) bool
	Stats(ctx context.Context) (map[string]any, error)
}

// SignalStore persists signal features, outcomes and model metrics.
type SignalStore interface {
	Init(ctx context.Context) error
	SaveOpportunity(ctx context.Context, sessionID, symbol, kind string, score float64, dir models.Direction, lastPrice float64, isNew bool) error
	SaveAlert(ctx context.Context, symbol, kind, message, level string) error
	OpenSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, id string, opportunities, alerts int) error
	UpsertSignalFeatures(ctx context.Context, rec *models.SignalRecord) error
	UpdateOutcome(ctx context.Context, signalID string, outcome models.Outcome, exitPrice, pnlPct float64) error
	PendingSignals(ctx context.Context) ([]*models.SignalRecord, error)
	CompletedSignals(ctx context.Context, limit int) ([]*models.SignalRecord, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	SaveModelMetrics(ctx context.Context, m map[string]any) error
	Health(ctx context.Context) error
	Close() error
}

// SignalPublisher fans emitted signals out to an external bus.
// Delivery is at-least-once; consumers must tolerate duplicates.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s *models.SmartSignal) error
	PublishAlert(ctx context.Context, n models.Notification) error
	Close() error
}

// Metrics is the operational metrics port.
type Metrics interface {
	RecordBatchIngested(symbols int)
	RecordAlert(detector string)
	RecordSignal(direction string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/markcheno/go-talib"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/logger"
)

const (
	oiBatchSize  = 10
	oiBatchPause = 100 * time.Millisecond

	rsiPeriod    = 14
	rsiKlineLoad = 100
)

// REST implements ExchangeREST over the public futures endpoints. Only
// unauthenticated market data is used; no API keys are required.
type REST struct {
	client  *futures.Client
	timeout time.Duration
	log     *logger.Logger

	// open-interest batching: one pause per group, shared across callers
	oiGate chan struct{}
}

func NewREST(testnet bool, timeout time.Duration, log *logger.Logger) drepo.ExchangeREST {
	futures.UseTestnet = testnet
	client := futures.NewClient("", "")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := &REST{
		client:  client,
		timeout: timeout,
		log:     log,
		oiGate:  make(chan struct{}, oiBatchSize),
	}
	go r.drainGate()
	return r
}

// drainGate empties one batch worth of tokens per pause, bounding the
// open-interest request rate to batchSize calls per interval.
func (r *REST) drainGate() {
	ticker := time.NewTicker(oiBatchPause)
	defer ticker.Stop()
	for range ticker.C {
		for i := 0; i < oiBatchSize; i++ {
			select {
			case <-r.oiGate:
			default:
			}
		}
	}
}

// GetFundingRates fetches the premium index for every perpetual in one
// call. Rates are converted to percent per funding interval.
func (r *REST) GetFundingRates(ctx context.Context) ([]models.FundingRate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("premium index: %w", err)
	}

	out := make([]models.FundingRate, 0, len(rows))
	for _, row := range rows {
		rate, err := strconv.ParseFloat(row.LastFundingRate, 64)
		if err != nil {
			continue
		}
		mark, _ := strconv.ParseFloat(row.MarkPrice, 64)
		out = append(out, models.FundingRate{
			Symbol:          row.Symbol,
			Rate:            rate * 100,
			MarkPrice:       mark,
			NextFundingTime: time.UnixMilli(row.NextFundingTime),
		})
	}
	return out, nil
}

// GetOpenInterest fetches the outstanding contracts for one symbol.
// Calls are throttled in groups so a full universe poll spreads out
// instead of bursting.
func (r *REST) GetOpenInterest(ctx context.Context, symbol string) (models.OpenInterest, error) {
	select {
	case r.oiGate <- struct{}{}:
	case <-ctx.Done():
		return models.OpenInterest{}, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	oi, err := r.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.OpenInterest{}, fmt.Errorf("open interest %s: %w", symbol, err)
	}
	value, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return models.OpenInterest{}, fmt.Errorf("open interest %s: parse %q: %w", symbol, oi.OpenInterest, err)
	}
	return models.OpenInterest{
		Symbol: symbol,
		Value:  value,
		TS:     time.UnixMilli(oi.Time),
	}, nil
}

// GetKlines fetches OHLCV bars for one symbol and interval.
func (r *REST) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	out := make([]models.Candle, 0, len(rows))
	for _, k := range rows {
		out = append(out, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      f64(k.Open),
			High:      f64(k.High),
			Low:       f64(k.Low),
			Close:     f64(k.Close),
			Volume:    f64(k.Volume),
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}
	return out, nil
}

// GetSymbolRSI computes the Wilder RSI(14) over recent closes.
func (r *REST) GetSymbolRSI(ctx context.Context, symbol, interval string) (float64, error) {
	candles, err := r.GetKlines(ctx, symbol, interval, rsiKlineLoad)
	if err != nil {
		return 0, err
	}
	if len(candles) <= rsiPeriod {
		return 0, fmt.Errorf("rsi %s %s: need more than %d closes, got %d", symbol, interval, rsiPeriod, len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi := talib.Rsi(closes, rsiPeriod)
	return rsi[len(rsi)-1], nil
}

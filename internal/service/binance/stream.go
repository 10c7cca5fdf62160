// Package binance adapts the exchange's public futures endpoints to the
// stream and REST ports.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/pkg/logger"
)

// Stream implements TickerStream over the combined !ticker@arr feed.
// One frame carries the full 24h ticker array for every symbol that
// changed in the last second.
type Stream struct {
	url          string
	pingInterval time.Duration
	log          *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func NewStream(url string, pingInterval time.Duration, log *logger.Logger) drepo.TickerStream {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		url:          url,
		pingInterval: pingInterval,
		log:          log,
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ticker stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.log.Info("ticker stream connected", logger.String("url", s.url))
	return nil
}

// rawTicker mirrors one element of the !ticker@arr payload; the exchange
// sends every numeric field as a string.
type rawTicker struct {
	Symbol         string `json:"s"`
	LastPrice      string `json:"c"`
	PriceChangePct string `json:"P"`
	OpenPrice      string `json:"o"`
	HighPrice      string `json:"h"`
	LowPrice       string `json:"l"`
	BaseVolume     string `json:"v"`
	QuoteVolume    string `json:"q"`
	TradeCount     int64  `json:"n"`
	EventTime      int64  `json:"E"` // ms
}

// Read streams whole ticker batches and errors. A batch is delivered as
// one slice; slow consumers see the most recent batch, never a backlog.
func (s *Stream) Read(ctx context.Context) (<-chan []models.Ticker, <-chan error) {
	batches := make(chan []models.Ticker, 1)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(batches)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("ticker stream not connected")
				return
			}

			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("ticker stream read: %w", err)
				return
			}

			var raw []rawTicker
			if err := json.Unmarshal(b, &raw); err != nil {
				// subscription acks and other non-array frames
				continue
			}
			batch := make([]models.Ticker, 0, len(raw))
			for _, r := range raw {
				if r.Symbol == "" {
					continue
				}
				batch = append(batch, models.Ticker{
					Symbol:         r.Symbol,
					LastPrice:      f64(r.LastPrice),
					OpenPrice:      f64(r.OpenPrice),
					HighPrice:      f64(r.HighPrice),
					LowPrice:       f64(r.LowPrice),
					PriceChangePct: f64(r.PriceChangePct),
					BaseVolume:     f64(r.BaseVolume),
					QuoteVolume:    f64(r.QuoteVolume),
					TradeCount:     r.TradeCount,
					EventTime:      time.UnixMilli(r.EventTime),
				})
			}
			if len(batch) == 0 {
				continue
			}

			// keep only the newest batch under back-pressure
			select {
			case batches <- batch:
			default:
				select {
				case <-batches:
				default:
				}
				select {
				case batches <- batch:
				default:
				}
			}
		}
	}()

	return batches, errs
}

// Reconnect closes and re-establishes the connection. The caller owns
// the backoff delay.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.Connect(ctx)
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected reports connection status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func f64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

package datastore

import (
	"sync"
	"time"

	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const newListingAge = time.Hour

// SymbolState is the rolling per-symbol state owned by the store.
// Histories are time-ordered, strictly monotone in ts, and trimmed to the
// configured windows on every update.
type SymbolState struct {
	Symbol        string
	Current       models.Ticker
	PriceHistory  []models.PricePoint
	VolumeHistory []models.VolumePoint
	FirstSeen     time.Time
	IsNew         bool
}

// Store is the single-writer ticker state. Update is called only by the
// ingest loop; readers get value copies and never share the live maps.
type Store struct {
	mu          sync.RWMutex
	clock       drepo.Clock
	symbols     map[string]*SymbolState
	priceWindow time.Duration
	volWindow   time.Duration
	seededOnce  bool
	connected   bool
}

// New creates a Store with the price/volume retention windows.
func New(clock drepo.Clock, priceWindow, volWindow time.Duration) *Store {
	return &Store{
		clock:       clock,
		symbols:     make(map[string]*SymbolState),
		priceWindow: priceWindow,
		volWindow:   volWindow,
	}
}

// Update absorbs one ticker batch atomically and returns symbols first seen
// after the initial batch. Out-of-order events per symbol are ignored.
func (s *Store) Update(batch []models.Ticker) (newListings []string) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range batch {
		if t.Symbol == "" {
			continue
		}
		st, ok := s.symbols[t.Symbol]
		if !ok {
			st = &SymbolState{
				Symbol:    t.Symbol,
				FirstSeen: now,
				IsNew:     true,
			}
			s.symbols[t.Symbol] = st
			if s.seededOnce {
				newListings = append(newListings, t.Symbol)
			}
		}
		if t.EventTime.Before(st.Current.EventTime) {
			continue
		}
		st.Current = t
		st.PriceHistory = appendPrice(st.PriceHistory, models.PricePoint{Price: t.LastPrice, TS: now}, now.Add(-s.priceWindow))
		st.VolumeHistory = appendVolume(st.VolumeHistory, models.VolumePoint{QuoteVolume: t.QuoteVolume, TS: now}, now.Add(-s.volWindow))
		if st.IsNew && now.Sub(st.FirstSeen) > newListingAge {
			st.IsNew = false
		}
	}
	s.seededOnce = true
	return newListings
}

func appendPrice(h []models.PricePoint, p models.PricePoint, cutoff time.Time) []models.PricePoint {
	// strict ts monotonicity: drop same-instant duplicates
	if n := len(h); n > 0 && !h[n-1].TS.Before(p.TS) {
		return trimPrice(h, cutoff)
	}
	h = append(h, p)
	return trimPrice(h, cutoff)
}

func trimPrice(h []models.PricePoint, cutoff time.Time) []models.PricePoint {
	i := 0
	for i < len(h) && !h[i].TS.After(cutoff) {
		i++
	}
	if i == 0 {
		return h
	}
	return append(h[:0:0], h[i:]...)
}

func appendVolume(h []models.VolumePoint, p models.VolumePoint, cutoff time.Time) []models.VolumePoint {
	if n := len(h); n > 0 && !h[n-1].TS.Before(p.TS) {
		return trimVolume(h, cutoff)
	}
	h = append(h, p)
	return trimVolume(h, cutoff)
}

func trimVolume(h []models.VolumePoint, cutoff time.Time) []models.VolumePoint {
	i := 0
	for i < len(h) && !h[i].TS.After(cutoff) {
		i++
	}
	if i == 0 {
		return h
	}
	return append(h[:0:0], h[i:]...)
}

// SetConnected records the upstream stream status.
func (s *Store) SetConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Connected reports the upstream stream status.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Get returns a deep copy of one symbol's state.
func (s *Store) Get(symbol string) (SymbolState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return SymbolState{}, false
	}
	return copyState(st), true
}

// Ticker returns the current ticker for one symbol.
func (s *Store) Ticker(symbol string) (models.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return models.Ticker{}, false
	}
	return st.Current, true
}

// LastPrice returns the most recent price for one symbol.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	t, ok := s.Ticker(symbol)
	if !ok {
		return 0, false
	}
	return t.LastPrice, true
}

// Symbols returns all known symbols.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Count returns the number of tracked symbols.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

// All returns deep copies of every symbol state. Detectors iterate this
// snapshot; they never hold references into the live store.
func (s *Store) All() []SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SymbolState, 0, len(s.symbols))
	for _, st := range s.symbols {
		out = append(out, copyState(st))
	}
	return out
}

func copyState(st *SymbolState) SymbolState {
	cp := *st
	cp.PriceHistory = append([]models.PricePoint(nil), st.PriceHistory...)
	cp.VolumeHistory = append([]models.VolumePoint(nil), st.VolumeHistory...)
	return cp
}

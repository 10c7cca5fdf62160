package datastore

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"PulseScan/internal/domain/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time              { return c.t }
func (c *fakeClock) Advance(d time.Duration)     { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func tick(sym string, price, qv float64, ts time.Time) models.Ticker {
	return models.Ticker{Symbol: sym, LastPrice: price, QuoteVolume: qv, EventTime: ts}
}

func TestUpdateHistoriesMonotoneAndWindowed(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, time.Hour)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		price := 100 + rng.Float64()*10
		s.Update([]models.Ticker{tick("AAAUSDT", price, float64(i), clock.Now())})
		clock.Advance(time.Duration(1+rng.Intn(5)) * time.Second)
	}

	st, ok := s.Get("AAAUSDT")
	if !ok {
		t.Fatalf("symbol missing")
	}
	for i := 1; i < len(st.PriceHistory); i++ {
		if !st.PriceHistory[i-1].TS.Before(st.PriceHistory[i].TS) {
			t.Fatalf("price history not strictly increasing at %d", i)
		}
	}
	for i := 1; i < len(st.VolumeHistory); i++ {
		if !st.VolumeHistory[i-1].TS.Before(st.VolumeHistory[i].TS) {
			t.Fatalf("volume history not strictly increasing at %d", i)
		}
	}
	cutP := clock.Now().Add(-5 * time.Minute)
	for _, p := range st.PriceHistory {
		if !p.TS.After(cutP) {
			t.Fatalf("price point outside window: %v", p.TS)
		}
	}
	cutV := clock.Now().Add(-time.Hour)
	for _, p := range st.VolumeHistory {
		if !p.TS.After(cutV) {
			t.Fatalf("volume point outside window: %v", p.TS)
		}
	}
}

func TestNewListingReportedAfterFirstBatch(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, time.Hour)

	got := s.Update([]models.Ticker{tick("AAAUSDT", 1, 1, clock.Now()), tick("BBBUSDT", 2, 2, clock.Now())})
	if len(got) != 0 {
		t.Fatalf("first batch must not report listings, got %v", got)
	}

	clock.Advance(time.Second)
	got = s.Update([]models.Ticker{tick("AAAUSDT", 1, 1, clock.Now()), tick("CCCUSDT", 3, 3, clock.Now())})
	if len(got) != 1 || got[0] != "CCCUSDT" {
		t.Fatalf("want [CCCUSDT], got %v", got)
	}
}

func TestIsNewFlipsAfterOneHour(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, 2*time.Hour)

	s.Update([]models.Ticker{tick("AAAUSDT", 1, 1, clock.Now())})
	st, _ := s.Get("AAAUSDT")
	if !st.IsNew {
		t.Fatalf("expected new symbol")
	}

	clock.Advance(61 * time.Minute)
	s.Update([]models.Ticker{tick("AAAUSDT", 1, 2, clock.Now())})
	st, _ = s.Get("AAAUSDT")
	if st.IsNew {
		t.Fatalf("expected isNew off after 1h")
	}
}

func TestOutOfOrderEventIgnored(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, time.Hour)

	t1 := clock.Now()
	s.Update([]models.Ticker{tick("AAAUSDT", 100, 1, t1)})
	clock.Advance(time.Second)
	s.Update([]models.Ticker{tick("AAAUSDT", 90, 1, t1.Add(-time.Second))})

	got, _ := s.LastPrice("AAAUSDT")
	if got != 100 {
		t.Fatalf("out-of-order event applied: price %v", got)
	}
}

func TestAllReturnsCopies(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, time.Hour)
	s.Update([]models.Ticker{tick("AAAUSDT", 100, 1, clock.Now())})

	all := s.All()
	all[0].PriceHistory[0].Price = -1

	st, _ := s.Get("AAAUSDT")
	if st.PriceHistory[0].Price != 100 {
		t.Fatalf("reader mutated store state")
	}
}

func TestManySymbols(t *testing.T) {
	clock := newClock()
	s := New(clock, 5*time.Minute, time.Hour)

	batch := make([]models.Ticker, 0, 50)
	for i := 0; i < 50; i++ {
		batch = append(batch, tick(fmt.Sprintf("S%02dUSDT", i), float64(i), float64(i), clock.Now()))
	}
	s.Update(batch)
	if s.Count() != 50 {
		t.Fatalf("want 50 symbols, got %d", s.Count())
	}
}

// Package scheduler fans the clock into every consumer: the ingest
// loop, detector update loops, signal fusion, outcome evaluation and
// snapshot publication.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/internal/engine"
	"PulseScan/internal/outcome"
	"PulseScan/internal/snapshot"
	"PulseScan/pkg/logger"
)

// Cadences carries the per-loop intervals. Zero values are rejected by
// config validation before they reach the scheduler.
type Cadences struct {
	Funding      time.Duration
	OpenInterest time.Duration
	MultiTF      time.Duration
	Pattern      time.Duration
	EntryTiming  time.Duration
	Correlation  time.Duration
	Whale        time.Duration
	TopPick      time.Duration
	Liquidation  time.Duration
	Snapshot     time.Duration
	Outcome      time.Duration
}

// Scheduler owns the run loop. It is the only writer of the store and
// the only caller of each detector's Update.
type Scheduler struct {
	stream    drepo.TickerStream
	store     *datastore.Store
	det       snapshot.Detectors
	engine    *engine.Engine
	tracker   *outcome.Tracker
	builder   *snapshot.Builder
	notifier  *snapshot.Notifier
	publisher drepo.SignalPublisher // optional
	metrics   drepo.Metrics
	log       *logger.Logger
	clock     drepo.Clock
	cad       Cadences

	reconnectDelay time.Duration

	// optional persistence, set before Run
	sink       drepo.SignalStore
	savePulse  time.Duration
	trainer    *outcome.Trainer
	trainEvery time.Duration
	sessionID  string
	persisted  map[string]struct{} // symbols saved on the last persist beat

	oppSaved   atomic.Int64
	alertSaved atomic.Int64

	mu          sync.Mutex
	subscribers map[int]chan models.Snapshot
	nextSubID   int
	critical    map[string]struct{}
}

func New(
	stream drepo.TickerStream,
	store *datastore.Store,
	det snapshot.Detectors,
	eng *engine.Engine,
	tracker *outcome.Tracker,
	builder *snapshot.Builder,
	notifier *snapshot.Notifier,
	publisher drepo.SignalPublisher,
	metrics drepo.Metrics,
	log *logger.Logger,
	clock drepo.Clock,
	cad Cadences,
	reconnectDelay time.Duration,
) *Scheduler {
	return &Scheduler{
		stream:         stream,
		store:          store,
		det:            det,
		engine:         eng,
		tracker:        tracker,
		builder:        builder,
		notifier:       notifier,
		publisher:      publisher,
		metrics:        metrics,
		log:            log,
		clock:          clock,
		cad:            cad,
		reconnectDelay: reconnectDelay,
		subscribers:    make(map[int]chan models.Snapshot),
		critical:       make(map[string]struct{}),
		persisted:      make(map[string]struct{}),
	}
}

// WithPersistence enables session bookkeeping, alert archival and the
// periodic opportunity save. Call before Run.
func (s *Scheduler) WithPersistence(sink drepo.SignalStore, savePulse time.Duration) {
	s.sink = sink
	s.savePulse = savePulse
}

// WithTrainer enables the periodic model training pass. Call before Run.
func (s *Scheduler) WithTrainer(trainer *outcome.Trainer, every time.Duration) {
	s.trainer = trainer
	s.trainEvery = every
}

// Run blocks until ctx is cancelled. On return every loop has observed
// cancellation and due outcome updates have been flushed.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stream.Connect(ctx); err != nil {
		return fmt.Errorf("connect ticker stream: %w", err)
	}
	s.store.SetConnected(true)

	if err := s.tracker.Restore(ctx); err != nil {
		s.log.Warn("outcome restore failed", logger.Error(err))
	}

	if s.sink != nil {
		id, err := s.sink.OpenSession(ctx)
		if err != nil {
			s.log.Warn("session open failed", logger.Error(err))
		} else {
			s.sessionID = id
		}
	}

	var wg sync.WaitGroup
	run := func(name string, every time.Duration, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, every, fn)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ingest(ctx)
	}()

	run("funding", s.cad.Funding, s.det.Funding.Update)
	run("open_interest", s.cad.OpenInterest, s.det.OI.Update)
	run("multi_timeframe", s.cad.MultiTF, s.det.MTF.Update)
	run("pattern", s.cad.Pattern, s.det.Pattern.Update)
	run("entry_timing", s.cad.EntryTiming, s.det.Entry.Update)
	run("correlation", s.cad.Correlation, noError(s.det.Correlation.Update))
	run("whale", s.cad.Whale, noError(s.det.Whale.Update))
	run("liquidation", s.cad.Liquidation, noError(s.det.Liquidation.Update))
	run("analysis", s.cad.TopPick, s.analyze)
	run("outcome", s.cad.Outcome, s.evaluateOutcomes)
	run("snapshot", s.cad.Snapshot, s.publishSnapshot)
	if s.sink != nil {
		run("persist", s.savePulse, s.persist)
	}
	if s.trainer != nil {
		run("train", s.trainEvery, s.trainer.RunOnce)
	}

	<-ctx.Done()
	wg.Wait()

	// flush whatever became due while the loops were winding down
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.tracker.EvaluateDue(flushCtx)

	if s.sink != nil && s.sessionID != "" {
		err := s.sink.CloseSession(flushCtx, s.sessionID,
			int(s.oppSaved.Load()), int(s.alertSaved.Load()))
		if err != nil {
			s.log.Warn("session close failed", logger.Error(err))
		}
	}

	if err := s.stream.Close(); err != nil {
		s.log.Warn("stream close failed", logger.Error(err))
	}
	s.store.SetConnected(false)
	s.closeSubscribers()
	return nil
}

// loop runs fn at the given cadence. time.Ticker drops beats while fn
// is still running, so a slow update skips ticks instead of queueing.
func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.metrics.RecordError(name)
				s.log.Warn("scheduled task failed",
					logger.String("task", name),
					logger.Error(err),
				)
			}
			s.metrics.RecordLatency(name, time.Since(start).Seconds())
		}
	}
}

// ingest applies ticker batches as they arrive and reconnects with a
// fixed delay on stream errors.
func (s *Scheduler) ingest(ctx context.Context) {
	batches, errs := s.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case batch, ok := <-batches:
			if !ok {
				return
			}
			newListings := s.store.Update(batch)
			s.det.Volume.UpdateTracking(batch)
			s.det.NewListing.Track(newListings)
			s.metrics.RecordBatchIngested(len(batch))

			for _, sym := range newListings {
				s.notifier.Push("newListing", sym, "new futures listing "+sym, "info")
				s.saveAlert(ctx, "newListing", sym, "new futures listing "+sym, "info")
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			s.store.SetConnected(false)
			s.metrics.RecordError("stream")
			s.log.Warn("ticker stream error", logger.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
			if err := s.stream.Reconnect(ctx); err != nil {
				s.log.Error("stream reconnect failed", logger.Error(err))
				continue
			}
			s.store.SetConnected(true)
			batches, errs = s.stream.Read(ctx)
		}
	}
}

// analyze runs one fusion cycle and routes emitted signals to the
// tracker, the publisher and the notification buffer.
func (s *Scheduler) analyze(ctx context.Context) error {
	emitted, reversals := s.engine.AnalyzeAll(ctx)

	for i := range emitted {
		sig := emitted[i]
		st, ok := s.store.Get(sig.Symbol)
		if !ok {
			continue
		}
		features := s.engine.Features(&sig, st)
		if err := s.tracker.Record(ctx, sig, features); err != nil {
			s.log.Warn("signal record failed",
				logger.String("symbol", sig.Symbol),
				logger.Error(err),
			)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishSignal(ctx, &sig); err != nil {
				s.metrics.RecordError("publish_signal")
				s.log.Warn("signal publish failed", logger.Error(err))
			}
		}
		msg := fmt.Sprintf("%s %s signal, confidence %.0f", sig.Symbol, sig.Direction, sig.Confidence)
		s.notifier.Push("smartSignal", sig.Symbol, msg, "info")
		s.saveAlert(ctx, "smartSignal", sig.Symbol, msg, "info")
	}

	for _, rev := range reversals {
		msg := fmt.Sprintf("%s potential %s reversal", rev.Symbol, rev.Direction)
		s.notifier.Push("reversal", rev.Symbol, msg, "warn")
		s.saveAlert(ctx, "reversal", rev.Symbol, msg, "warn")
	}
	return nil
}

func (s *Scheduler) evaluateOutcomes(ctx context.Context) error {
	s.tracker.EvaluateDue(ctx)
	return nil
}

// persist archives the current top-pick board. A symbol is flagged new
// when it was absent from the previous beat.
func (s *Scheduler) persist(ctx context.Context) error {
	picks := s.det.TopPick.Detect()
	current := make(map[string]struct{}, len(picks))

	for _, p := range picks {
		current[p.Symbol] = struct{}{}
		st, ok := s.store.Get(p.Symbol)
		if !ok {
			continue
		}
		_, seen := s.persisted[p.Symbol]
		err := s.sink.SaveOpportunity(ctx, s.sessionID, p.Symbol, "topPick", p.Score, p.Direction,
			st.Current.LastPrice, !seen)
		if err != nil {
			return fmt.Errorf("save opportunity %s: %w", p.Symbol, err)
		}
		s.oppSaved.Add(1)
	}

	s.persisted = current
	return nil
}

// saveAlert archives a pushed notification when a sink is configured.
func (s *Scheduler) saveAlert(ctx context.Context, typ, symbol, message, level string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveAlert(ctx, symbol, typ, message, level); err != nil {
		s.metrics.RecordError("save_alert")
		s.log.Warn("alert save failed", logger.Error(err))
		return
	}
	s.alertSaved.Add(1)
}

// publishSnapshot fires critical-volatility edge alerts, builds one
// snapshot and fans it out.
func (s *Scheduler) publishSnapshot(ctx context.Context) error {
	current := s.det.Volatility.CriticalSet()

	s.mu.Lock()
	previous := s.critical
	s.critical = current
	s.mu.Unlock()

	for sym := range current {
		if _, seen := previous[sym]; seen {
			continue
		}
		s.notifier.Push("criticalVolatility", sym, sym+" crossed the critical volatility threshold", "critical")
		s.saveAlert(ctx, "criticalVolatility", sym, sym+" crossed the critical volatility threshold", "critical")
		if s.publisher != nil {
			n := models.Notification{
				Type:      "criticalVolatility",
				Symbol:    sym,
				Message:   sym + " crossed the critical volatility threshold",
				Level:     "critical",
				Timestamp: s.clock.Now(),
			}
			if err := s.publisher.PublishAlert(ctx, n); err != nil {
				s.metrics.RecordError("publish_alert")
			}
		}
	}

	snap := s.builder.Build()

	s.mu.Lock()
	for _, ch := range s.subscribers {
		// keep only the latest snapshot per slow subscriber
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// Subscribe registers a snapshot consumer. The returned cancel func
// must be called exactly once; the channel closes afterwards.
func (s *Scheduler) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Scheduler) closeSubscribers() {
	s.mu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()
}

func noError(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}

package server

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	drepo "PulseScan/internal/domain/repository"
	"PulseScan/internal/handler/api"
	"PulseScan/internal/handler/ws"
	"PulseScan/internal/scheduler"
	pkgch "PulseScan/pkg/clickhouse"
	"PulseScan/pkg/config"
	xhttp "PulseScan/pkg/http"
	applogger "PulseScan/pkg/logger"
	"PulseScan/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	sched      *scheduler.Scheduler
	api        *api.DashboardHandler
	ws         *ws.Handler
	chClient   *pkgch.Client
	publisher  drepo.SignalPublisher
	opsQueue   *queue.RedisQueue
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	sched *scheduler.Scheduler,
	apiHandler *api.DashboardHandler,
	wsHandler *ws.Handler,
	chClient *pkgch.Client,
	publisher drepo.SignalPublisher,
	opsQueue *queue.RedisQueue,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		sched:     sched,
		api:       apiHandler,
		ws:        wsHandler,
		chClient:  chClient,
		publisher: publisher,
		opsQueue:  opsQueue,
	}
}

// routes registers both the REST and WebSocket surfaces on one Echo.
type routes struct {
	handlers []xhttp.Handler
}

func (r routes) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.opsQueue != nil {
		if err := a.opsQueue.Start(); err != nil {
			a.log.Warn("ops queue unavailable", applogger.Error(err))
			a.opsQueue = nil
		} else if a.cfg.LogCollector.Enabled {
			a.log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   a.cfg.LogCollector.Interval,
				CountThreshold: a.cfg.LogCollector.CountThreshold,
				Topic:          a.cfg.LogCollector.Topic,
				Publisher:      a.opsQueue,
			})
		}
	}

	a.httpServer = xhttp.NewServer(routes{handlers: []xhttp.Handler{a.api, a.ws}},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.log, time.Second),
	)

	// scheduler owns the stream and every periodic loop
	done := make(chan error, 1)
	go func() {
		done <- a.sched.Run(ctx)
	}()
	a.log.Info("scheduler started",
		applogger.String("stream", a.cfg.Exchange.StreamURL),
		applogger.Int("port", a.cfg.Server.Port),
	)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		stop()
		<-done
		return err
	}

	var runErr error
	select {
	case runErr = <-done:
		// stream never connected or scheduler gave up
		if runErr != nil {
			a.log.Error("scheduler error", applogger.Error(runErr))
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		runErr = <-done
	}

	a.shutdown()
	return runErr
}

// shutdown gracefully stops everything the scheduler does not own.
func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.opsQueue != nil {
		a.log.RemoveCollector()
		if err := a.opsQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("ops queue stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

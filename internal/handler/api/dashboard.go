// Package api exposes the dashboard REST surface.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
	"PulseScan/internal/engine"
	"PulseScan/internal/outcome"
	"PulseScan/internal/service/ratelimit"
	"PulseScan/internal/snapshot"
	xhttp "PulseScan/pkg/http"
	xlogger "PulseScan/pkg/logger"
)

// DashboardHandler serves the snapshot, status and stats endpoints.
type DashboardHandler struct {
	log       *xlogger.Logger
	store     *datastore.Store
	builder   *snapshot.Builder
	filter    *snapshot.Filter
	engine    *engine.Engine
	tracker   *outcome.Tracker
	sink      drepo.SignalStore
	predictor drepo.Predictor
	limiter   *ratelimit.Limiter
}

func NewDashboardHandler(
	log *xlogger.Logger,
	store *datastore.Store,
	builder *snapshot.Builder,
	filter *snapshot.Filter,
	eng *engine.Engine,
	tracker *outcome.Tracker,
	sink drepo.SignalStore,
	predictor drepo.Predictor,
) *DashboardHandler {
	return &DashboardHandler{
		log:       log,
		store:     store,
		builder:   builder,
		filter:    filter,
		engine:    eng,
		tracker:   tracker,
		sink:      sink,
		predictor: predictor,
		limiter:   ratelimit.New(),
	}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/status", h.Status)
	g.GET("/stats", h.Stats)
	g.GET("/signals", h.Signals)
	g.GET("/outcomes", h.Outcomes)
	g.GET("/filter", h.Filter)
	g.PUT("/filter", h.SetFilter)
	// the export reads every completed row, so throttle it per client
	g.GET("/export.csv", h.ExportCSV, h.throttle(2, 0.1))
	g.GET("/predictor/stats", h.PredictorStats)
}

func (h *DashboardHandler) throttle(capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !h.limiter.Allow(c.RealIP(), capacity, refillPerSec) {
				return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// Snapshot returns the same document the WebSocket feed publishes.
func (h *DashboardHandler) Snapshot(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.builder.Build())
}

func (h *DashboardHandler) Status(c echo.Context) error {
	healthy := true
	if h.sink != nil {
		healthy = h.sink.Health(c.Request().Context()) == nil
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"connected":      h.store.Connected(),
		"symbols":        h.store.Count(),
		"pendingSignals": h.tracker.PendingCount(),
		"storeHealthy":   healthy,
	})
}

func (h *DashboardHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.tracker.Report())
}

type signalsRequest struct {
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Direction string `query:"direction" validate:"omitempty,oneof=LONG SHORT"`
}

func (h *DashboardHandler) Signals(c echo.Context) error {
	req := &signalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	return xhttp.SuccessResponse(c, h.engine.TopSignals(req.Limit, models.Direction(req.Direction)))
}

// Outcomes returns the most recently completed signal records.
func (h *DashboardHandler) Outcomes(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 20)
	return xhttp.SuccessResponse(c, h.tracker.RecentCompleted(limit))
}

func (h *DashboardHandler) Filter(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.filter.Settings())
}

type filterRequest struct {
	Preset             string   `json:"preset" validate:"omitempty,oneof=all highVolume bigMovers topTier"`
	MinVolume24h       float64  `json:"minVolume24h" validate:"omitempty,min=0"`
	MinChange24h       float64  `json:"minChange24h" validate:"omitempty,min=0"`
	OnlyQuote          string   `json:"onlyQuote"`
	ExcludeStablecoins bool     `json:"excludeStablecoins"`
	Excluded           []string `json:"excluded"`
	Watchlist          []string `json:"watchlist"`
}

// SetFilter switches to a named preset, or applies custom settings when
// no preset is given.
func (h *DashboardHandler) SetFilter(c echo.Context) error {
	req := &filterRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Preset != "" {
		if err := h.filter.SetPreset(req.Preset); err != nil {
			return xhttp.BadRequestResponse(c, err.Error())
		}
	} else {
		h.filter.Apply(models.FilterSettings{
			Preset:             "custom",
			MinVolume24h:       req.MinVolume24h,
			MinChange24h:       req.MinChange24h,
			OnlyQuote:          req.OnlyQuote,
			ExcludeStablecoins: req.ExcludeStablecoins,
			Excluded:           req.Excluded,
			Watchlist:          req.Watchlist,
		})
	}
	h.log.Info("filter updated", xlogger.String("preset", h.filter.Settings().Preset))
	return xhttp.SuccessResponse(c, h.filter.Settings())
}

// ExportCSV streams completed signals in the training schema.
func (h *DashboardHandler) ExportCSV(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="signals.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	if err := h.sink.ExportCSV(c.Request().Context(), c.Response()); err != nil {
		h.log.Error("csv export failed", xlogger.Error(err))
		return err
	}
	return nil
}

func (h *DashboardHandler) PredictorStats(c echo.Context) error {
	if h.predictor == nil {
		return xhttp.NotFoundResponse(c, "predictor disabled")
	}
	stats, err := h.predictor.Stats(c.Request().Context())
	if err != nil {
		h.log.Error("predictor stats failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, stats)
}

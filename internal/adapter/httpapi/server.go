package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/history"
	"github.com/solarsentry/space-weather-forecast/internal/hub"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ForecastSource serves the latest bundle and hub statistics.
type ForecastSource interface {
	Latest() (domain.ForecastBundle, bool)
	CurrentStats() hub.Stats
}

// HistoryReader serves persisted forecasts and escalation alerts. A nil
// reader means history is disabled.
type HistoryReader interface {
	Recent(ctx context.Context, filter history.Filter) ([]history.ForecastRecord, error)
	RecentAlerts(ctx context.Context, limit int) ([]history.Alert, error)
}

// Server exposes the HTTP surface: health, readiness, metrics, the forecast
// API, and the websocket upgrade endpoint.
type Server struct {
	httpServer *http.Server
	forecasts  ForecastSource
	ready      ReadinessChecker
	history    HistoryReader
	logger     *slog.Logger
}

// NewServer wires the full route surface.
func NewServer(addr string, forecasts ForecastSource, ready ReadinessChecker, hist HistoryReader, wsHandler http.Handler, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		forecasts: forecasts,
		ready:     ready,
		history:   hist,
		logger:    logger,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gin.WrapH(wsHandler))

	api := router.Group("/api")
	{
		api.GET("/forecast", s.handleForecast)
		api.GET("/status", s.handleStatus)
		api.GET("/history", s.handleHistory)
		api.GET("/alerts", s.handleAlerts)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleForecast(c *gin.Context) {
	bundle, ok := s.forecasts.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "no_data",
			"message": "first forecast cycle has not completed yet",
		})
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.forecasts.CurrentStats())
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	filter, err := parseHistoryFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.history.Recent(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forecasts": records, "count": len(records)})
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit, err := parseLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alerts, err := s.history.RecentAlerts(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("alert query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func parseHistoryFilter(c *gin.Context) (history.Filter, error) {
	var filter history.Filter

	limit, err := parseLimit(c)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if raw := c.Query("minScore"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			return filter, errors.New("invalid minScore")
		}
		filter.MinScore = v
	}

	if raw := c.Query("level"); raw != "" {
		if !validLevel(raw) {
			return filter, errors.New("invalid level")
		}
		filter.Level = raw
	}
	return filter, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func validLevel(raw string) bool {
	switch domain.RiskLevel(raw) {
	case domain.LevelMinimal, domain.LevelLow, domain.LevelModerate, domain.LevelHigh, domain.LevelExtreme:
		return true
	}
	return false
}

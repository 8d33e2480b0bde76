// Package site serves a read-only status API on the local network. It
// never commands actuators; writes always go through the control loop.
package site

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"greenos/controller/config"
	"greenos/controller/store"
)

// maxChartPoints caps the history payload so the chart stays light on
// long retention windows; older data is decimated evenly.
const maxChartPoints = 200

// StatusSource is the controller-side view the site exposes.
type StatusSource interface {
	Status() any
}

type statusFunc func() any

func (f statusFunc) Status() any { return f() }

// StatusFunc adapts a plain closure to StatusSource.
func StatusFunc(f func() any) StatusSource { return statusFunc(f) }

type Server struct {
	cfg config.Site
	src StatusSource
	db  *store.Store
	log *slog.Logger
	srv *http.Server
}

func New(cfg config.Site, src StatusSource, db *store.Store, log *slog.Logger) *Server {
	return &Server{cfg: cfg, src: src, db: db, log: log}
}

// Start launches the HTTP listener in the background. Failure to serve is
// logged, not fatal: the site is an observability surface, the controller
// must keep running without it.
func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/status", s.handleStatus)
	router.GET("/api/sensor_data", s.handleSensorData)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: router}
	go func() {
		s.log.Info("status site listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("status site stopped", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Status())
}

// handleSensorData returns the reading history, decimated to at most
// maxChartPoints evenly spaced samples.
func (s *Server) handleSensorData(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local store not configured"})
		return
	}
	readings, err := s.db.Readings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, Decimate(readings, maxChartPoints))
}

// Decimate keeps every step-th reading so at most limit points survive.
func Decimate(readings []store.Reading, limit int) []store.Reading {
	if len(readings) <= limit {
		return readings
	}
	step := int(math.Ceil(float64(len(readings)) / float64(limit)))
	out := make([]store.Reading, 0, limit)
	for i := 0; i < len(readings); i += step {
		out = append(out, readings[i])
	}
	return out
}

// Package api serves container inspection over HTTP.
package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/vfxbuddies/buddies/internal/inspect"
	"github.com/vfxbuddies/buddies/internal/logger"
	"github.com/vfxbuddies/buddies/internal/version"
)

const (
	DefaultMaxBodyBytes  = 256 << 20
	DefaultRatePerSecond = 10
	DefaultBurst         = 20

	defaultStoreCapacity = 256
)

type Config struct {
	// MaxBodyBytes caps the size of an uploaded container.
	MaxBodyBytes int64
	// RatePerSecond and Burst configure the inspection token bucket.
	// A negative rate disables limiting.
	RatePerSecond float64
	Burst         int
	// StoreCapacity is the number of past inspections kept for lookup.
	StoreCapacity int
	Log           logger.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.StoreCapacity <= 0 {
		c.StoreCapacity = defaultStoreCapacity
	}
	if c.Log == nil {
		c.Log = logger.Nop()
	}
	return c
}

type Server struct {
	cfg     Config
	store   *InspectionStore
	limiter *rate.Limiter
	clock   func() time.Time
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:   cfg,
		store: NewInspectionStore(cfg.StoreCapacity),
		clock: time.Now,
	}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/inspect", s.handleInspect, s.rateLimit)
	e.GET("/v1/inspect/:id", s.handleGetInspection)
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			c.Response().Header().Set("Retry-After", "1")
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many inspection requests", "", "rate_limited")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
}

func (s *Server) handleInspect(c *echo.Context) error {
	req := c.Request()
	limit := s.cfg.MaxBodyBytes
	if req.ContentLength > limit {
		return s.tooLarge(c)
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(body)) > limit {
		return s.tooLarge(c)
	}
	if len(body) == 0 {
		return writeBadRequest(c, "empty body")
	}

	summary, err := inspect.Bytes(body)
	if err != nil {
		s.cfg.Log.Warn("inspection failed", "bytes", len(body), "error", err)
		return writeInspectError(c, err)
	}
	in := Inspection{
		ID:        newInspectionID(),
		Object:    "inspection",
		CreatedAt: s.clock().Unix(),
		Summary:   summary,
	}
	s.store.Put(in)
	s.cfg.Log.Info("inspected container", "id", in.ID, "format", string(summary.Format), "size", humanize.Bytes(uint64(len(body))))
	return writeJSON(c, http.StatusOK, in)
}

func (s *Server) handleGetInspection(c *echo.Context) error {
	id := c.Param("id")
	in, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("inspection %q not found", id))
	}
	return writeJSON(c, http.StatusOK, in)
}

func (s *Server) tooLarge(c *echo.Context) error {
	msg := fmt.Sprintf("container exceeds %s", humanize.IBytes(uint64(s.cfg.MaxBodyBytes)))
	return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error", msg, "body", "too_large")
}

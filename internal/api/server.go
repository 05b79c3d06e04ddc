// Package api exposes the platform's analytics over a JSON REST
// interface plus a websocket signal stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/db"
	"github.com/quantdesk/quantdesk/internal/indicators"
	"github.com/quantdesk/quantdesk/internal/models"
	"github.com/quantdesk/quantdesk/internal/risk"
)

// Server represents the REST API server
type Server struct {
	router     *gin.Engine
	db         *db.DB
	indicators *indicators.Service
	riskCalc   *risk.Calculator
	registry   *models.Registry
	modelRuns  *db.ModelRunRepository
	natsConn   *nats.Conn
	addr       string
	server     *http.Server
}

// Config contains server configuration
type Config struct {
	Host string
	Port int

	// RateLimit is requests per second allowed across the API; zero
	// disables limiting. Burst defaults to 2x the rate.
	RateLimit float64

	DB       *db.DB
	NATSConn *nats.Conn
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if config.RateLimit > 0 {
		router.Use(RateLimitMiddleware(config.RateLimit, int(config.RateLimit*2)))
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	// The risk calculator and model run store ride the pool when a
	// database is attached; pure-math endpoints work without one.
	riskCalc := risk.NewCalculator(nil)
	var modelRuns *db.ModelRunRepository
	if config.DB != nil {
		riskCalc = risk.NewCalculatorWithPool(config.DB.Pool())
		modelRuns = db.NewModelRunRepository(config.DB.Pool())
	}

	server := &Server{
		router:     router,
		db:         config.DB,
		indicators: indicators.NewService(),
		riskCalc:   riskCalc,
		registry:   models.NewRegistry(),
		modelRuns:  modelRuns,
		natsConn:   config.NATSConn,
		addr:       addr,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

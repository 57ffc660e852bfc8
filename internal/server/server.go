// Package server wires XDR's collaborators into an HTTP server: the
// gin router, middleware stack, data-plane/admin routes, and graceful
// startup/shutdown lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/xdr-run/xdr/internal/adminstream"
	"github.com/xdr-run/xdr/internal/chaos"
	"github.com/xdr-run/xdr/internal/config"
	"github.com/xdr-run/xdr/internal/forwarder"
	"github.com/xdr-run/xdr/internal/health"
	"github.com/xdr-run/xdr/internal/idgen"
	"github.com/xdr-run/xdr/internal/ledger"
	"github.com/xdr-run/xdr/internal/logging"
	"github.com/xdr-run/xdr/internal/metrics"
	"github.com/xdr-run/xdr/internal/minter"
	"github.com/xdr-run/xdr/internal/otelsetup"
	"github.com/xdr-run/xdr/internal/pipeline"
	"github.com/xdr-run/xdr/internal/ratelimit"
	"github.com/xdr-run/xdr/internal/retry"
	"github.com/xdr-run/xdr/internal/security"
	"github.com/xdr-run/xdr/internal/tracelog"
	"github.com/xdr-run/xdr/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and XDR's collaborators.
type Server struct {
	cfg          *config.Config
	ledger       *ledger.Ledger
	chaosEngine  *chaos.Engine
	minter       *minter.Minter
	forwarder    *forwarder.Forwarder
	traces       *tracelog.Buffer
	pipeline     *pipeline.Pipeline
	health       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory ledger
	stream       *adminstream.Hub
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	tracerShutdown func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance, binding the chaos engine, ledger,
// minter, forwarder and pipeline per cfg.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	s.minter = minter.New()
	s.chaosEngine = chaos.New()
	s.forwarder = forwarder.New(cfg.ForwardTimeout, cfg.AllowHTTPUpstream)
	s.traces = tracelog.New(cfg.TraceBufferSize)
	s.health = health.NewRegistry()
	s.health.Register("chaos_engine", health.ChaosEngineChecker(s.chaosEngine))
	s.health.Register("forwarder", health.ForwarderChecker(s.forwarder))

	var ledgerStore ledger.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Postgres may still be coming up alongside XDR (docker-compose,
		// k8s sidecar); retry a few times before giving up.
		if err := retry.Do(ctx, 5, 200*time.Millisecond, func() error {
			return db.Ping()
		}); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		pgStore := ledger.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate ledger store: %w", err)
		}

		s.db = db
		ledgerStore = pgStore
		s.logger.Info("using PostgreSQL ledger storage", "url", maskDSN(cfg.DatabaseURL))

		s.health.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		ledgerStore = ledger.NewMemoryStore()
		s.logger.Info("using in-memory ledger storage (balances will not persist)")
	}
	s.ledger = ledger.New(ledgerStore, s.minter, cfg.ChainID)

	profile := pipeline.NetworkProfile{
		ChainID:          cfg.ChainID,
		PricePerRequest:  cfg.PricePerRequestUSDC,
		CurrencyLabel:    "USDC",
		RecipientAddress: cfg.RecipientAddress,
	}
	s.pipeline = pipeline.New(s.ledger, s.chaosEngine, s.minter, s.forwarder, s.traces, profile)

	s.stream = adminstream.NewHub(s.logger)
	s.pipeline.Stream = s.stream

	shutdownTracer, err := otelsetup.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.tracerShutdown = shutdownTracer

	s.healthy.Store(true)

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func maskDSN(dsn string) string {
	if len(dsn) <= 20 {
		return "***"
	}
	return dsn[:12] + "***"
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitPerMin,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// adminSecretMiddleware guards /_xdr/* with a shared secret when
// cfg.AdminSecret is set. Unset (the default), the admin plane is open.
func (s *Server) adminSecretMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Admin-Secret"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		case status >= 400:
			logger.Warn("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed", "method", c.Request.Method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/livez", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	admin := s.router.Group("/_xdr")
	if s.cfg.AdminSecret != "" {
		admin.Use(s.adminSecretMiddleware())
	}
	admin.Any("/budget/:agent_id", s.pipeline.SetBudget)
	admin.GET("/status/:agent_id", s.pipeline.Status)
	admin.POST("/chaos", s.pipeline.SetChaos)
	admin.GET("/logs", s.pipeline.Logs)
	admin.GET("/stream", gin.WrapF(s.stream.ServeWS))

	// Everything else is a data-plane request the pipeline decides on.
	s.router.NoRoute(s.pipeline.DataPlane)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until a shutdown signal, context
// cancellation, or a listen error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	go s.stream.Run(runCtx)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Bind + ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "network", s.cfg.Network, "chain_id", s.cfg.ChainID)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and its collaborators.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}


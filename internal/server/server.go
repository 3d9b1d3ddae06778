// Package server sets up the HTTP server with all routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/rentrail/internal/agreements"
	"github.com/mbd888/rentrail/internal/anchor"
	"github.com/mbd888/rentrail/internal/config"
	"github.com/mbd888/rentrail/internal/escrow"
	"github.com/mbd888/rentrail/internal/gateway"
	"github.com/mbd888/rentrail/internal/health"
	"github.com/mbd888/rentrail/internal/logging"
	"github.com/mbd888/rentrail/internal/metrics"
	"github.com/mbd888/rentrail/internal/payments"
	"github.com/mbd888/rentrail/internal/ratelimit"
	"github.com/mbd888/rentrail/internal/realtime"
	"github.com/mbd888/rentrail/internal/security"
	"github.com/mbd888/rentrail/internal/signing"
	"github.com/mbd888/rentrail/internal/traces"
	"github.com/mbd888/rentrail/internal/validation"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil if using in-memory
	gw          gateway.Client
	anchorer    anchor.Client
	payments    *payments.Service
	escrow      *escrow.Service
	agreements  *agreements.Service
	hub         *realtime.Hub
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	tracesStop  func(context.Context) error
	cancelRun   context.CancelFunc

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway sets a custom gateway client (for testing).
func WithGateway(gw gateway.Client) Option {
	return func(s *Server) {
		s.gw = gw
	}
}

// WithAnchorer sets a custom ledger client (for testing).
func WithAnchorer(a anchor.Client) Option {
	return func(s *Server) {
		s.anchorer = a
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Tracing (no-op unless OTLP endpoint configured)
	tracesStop, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.tracesStop = tracesStop

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	var (
		paymentStore   payments.Store
		agreementStore agreements.Store
		holdStore      escrow.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		paymentStore = payments.NewPostgresStore(db)
		agreementStore = agreements.NewPostgresStore(db)
		holdStore = escrow.NewPostgresStore(db)
		s.healthReg.Register("database", health.DatabaseChecker(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		paymentStore = payments.NewMemoryStore()
		agreementStore = agreements.NewMemoryStore()
		holdStore = escrow.NewMemoryStore()
		s.logger.Warn("using in-memory storage; data is lost on restart")
	}

	// Gateway client
	if s.gw == nil {
		s.gw = gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	}

	// Ledger client: real chain when a funded key is configured, else sim
	if s.anchorer == nil {
		if cfg.AnchorEnabled() {
			chainClient, err := anchor.NewChainClient(anchor.ChainConfig{
				RPCURL:         cfg.RPCURL,
				PrivateKey:     cfg.PrivateKey,
				ChainID:        cfg.ChainID,
				EscrowContract: cfg.AnchorContract,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to init chain client: %w", err)
			}
			s.anchorer = chainClient
			s.logger.Info("ledger anchoring enabled", "chain_id", cfg.ChainID)
		} else {
			s.anchorer = anchor.NewSimClient()
			s.logger.Warn("no PRIVATE_KEY set; using simulated ledger")
		}
	}

	verifier := signing.NewVerifier(cfg.GatewayKeySecret, cfg.GatewayWebhookSecret)

	s.hub = realtime.NewHub(s.logger)

	s.agreements = agreements.NewService(agreementStore, s.anchorer)
	s.payments = payments.NewService(
		paymentStore, s.gw, verifier,
		&agreementSourceAdapter{s.agreements},
		s.logger, cfg.Currency,
	).WithAnchorer(s.anchorer).WithEventSink(s.hub)
	s.escrow = escrow.NewService(holdStore, s.anchorer, &agreementLookupAdapter{s.agreements}, s.logger)

	s.setupRouter()

	return s, nil
}

// agreementSourceAdapter narrows the agreements service to what the
// payments engine consumes.
type agreementSourceAdapter struct {
	svc *agreements.Service
}

func (a *agreementSourceAdapter) ActiveAgreement(ctx context.Context, propertyID, partyID string) (*payments.AgreementRef, error) {
	agr, err := a.svc.GetActive(ctx, propertyID, partyID)
	if err != nil {
		return nil, err
	}
	return &payments.AgreementRef{
		ID:         agr.ID,
		LandlordID: agr.LandlordID,
		TenantID:   agr.TenantID,
	}, nil
}

// agreementLookupAdapter narrows the agreements service to what the
// escrow coordinator consumes.
type agreementLookupAdapter struct {
	svc *agreements.Service
}

func (a *agreementLookupAdapter) LookupAgreement(ctx context.Context, agreementID string) (*escrow.AgreementFacts, error) {
	agr, err := a.svc.Get(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	return &escrow.AgreementFacts{
		ID:              agr.ID,
		PropertyID:      agr.PropertyID,
		LandlordID:      agr.LandlordID,
		TenantID:        agr.TenantID,
		SecurityDeposit: agr.SecurityDeposit,
		Ended:           agr.Ended(),
	}, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupRouter() {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	limCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// identityMiddleware reads the caller identity placed by the platform's
// edge proxy. Requests without it cannot reach party-scoped operations.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Missing X-User-ID header",
			})
			return
		}
		c.Set("userID", userID)
		c.Set("userRole", c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for realtime payment events
	s.router.GET("/v1/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	paymentHandler := payments.NewHandler(s.payments)
	escrowHandler := escrow.NewHandler(s.escrow)
	agreementHandler := agreements.NewHandler(s.agreements)

	// The gateway webhook authenticates by body signature, not identity.
	public := s.router.Group("/v1")
	paymentHandler.RegisterWebhook(public)

	v1 := s.router.Group("/v1")
	v1.Use(s.identityMiddleware())
	paymentHandler.RegisterRoutes(v1)
	escrowHandler.RegisterRoutes(v1)
	agreementHandler.RegisterRoutes(v1)
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"healthy":    healthy,
		"subsystems": statuses,
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRun != nil {
		s.cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Warn("traces shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "req_unknown"
	}
	return "req_" + hex.EncodeToString(b)
}

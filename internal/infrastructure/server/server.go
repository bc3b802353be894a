package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/replayio/devtools-sub005/internal/api/http"
	"github.com/replayio/devtools-sub005/internal/api/middleware"
	"github.com/replayio/devtools-sub005/internal/api/ws"
	"github.com/replayio/devtools-sub005/internal/infrastructure/config"
	"github.com/replayio/devtools-sub005/internal/infrastructure/logging"
	"github.com/replayio/devtools-sub005/internal/infrastructure/monitoring"
	"github.com/replayio/devtools-sub005/internal/infrastructure/tracing"
	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/resolver/cdp"
	"github.com/replayio/devtools-sub005/internal/resolver/remote"
	"github.com/replayio/devtools-sub005/internal/resolver/snapshot"
	"github.com/replayio/devtools-sub005/internal/sandbox"
	"github.com/replayio/devtools-sub005/internal/session"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	sessions *session.Manager
	backend  inspector.Backend
	router   *gin.Engine
	handler  http.Handler
	http     *http.Server

	// closers release backend resources, last acquired first
	closers []func() error
	cancel  context.CancelFunc
}

// backend is what a resolver mode contributes to the server
type backend struct {
	factory session.BackendFactory
	shared  inspector.Backend
	health  func() interface{}
}

// NewServer creates a new server instance. A nil logger is built from the
// logging section of cfg.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing inspector server",
		zap.String("addr", cfg.Addr()),
		zap.String("resolver", cfg.Resolver.Mode),
		zap.Int("max_depth", cfg.Inspector.MaxDepth),
		zap.Int("bucket_size", cfg.Inspector.BucketSize),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		cancel:   cancel,
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = monitoring.NewMetrics(s.registry)
	s.tracer = tracing.New("inspector", logger.Named("trace"))

	b, err := s.openBackend(ctx)
	if err != nil {
		s.closeBackends()
		s.tracer.Close()
		return nil, err
	}
	s.backend = b.shared

	s.sessions = session.NewManager(b.factory, session.Options{
		Logger:       logger.Named("session"),
		Metrics:      s.metrics,
		CacheMetrics: s.metrics,
		BucketSize:   cfg.Inspector.BucketSize,
		MaxDepth:     cfg.Inspector.MaxDepth,
		CacheSize:    cfg.Resolver.CacheSize,
		MaxSessions:  cfg.MaxSessions,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = s.buildRouter(b)

	// Event streams are hijacked connections and must not be wrapped by
	// the compressing writer
	gz := gzhttp.GzipHandler(s.router)
	s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildRouter(b *backend) *gin.Engine {
	cfg := s.config
	router := gin.New()
	router.UseRawPath = true

	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(middleware.Logger(s.logger.Named("http")))
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(s.sessions, s.metrics, s.logger.Named("api"))
	if b.health != nil {
		handlers.AddHealthDetail(cfg.Resolver.Mode, b.health)
	}
	handlers.Register(router)

	ws.NewHandler(s.sessions, s.metrics, s.logger.Named("ws")).Register(router)

	apihttp.NewProtocolHandlers(s.backend, s.logger.Named("protocol")).
		WithMetrics(s.metrics).
		Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return router
}

// openBackend connects the resolver selected by the configuration
func (s *Server) openBackend(ctx context.Context) (*backend, error) {
	cfg := s.config
	logger := s.logger.Named("resolver")

	switch cfg.Resolver.Mode {
	case config.ModeSandbox:
		sbCfg := sandbox.DefaultConfig()
		sbCfg.Timeout = cfg.Sandbox.Timeout
		sbCfg.DOMHTML = cfg.Sandbox.DOMHTML

		pool, err := sandbox.NewPool(sbCfg, cfg.Sandbox.PoolSize, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		// the protocol endpoints serve one long-lived runtime of their own
		rt, err := sandbox.New(sbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create protocol sandbox: %w", err)
		}
		s.closers = append(s.closers, rt.Close)

		return &backend{
			factory: session.Pooled(pool, logger),
			shared:  rt.WithLogger(logger),
			health:  func() interface{} { return pool.Stats() },
		}, nil

	case config.ModeRemote:
		rcfg := remote.DefaultConfig(cfg.Resolver.RemoteURL)
		rcfg.Timeout = cfg.Resolver.Timeout
		client := remote.New(rcfg, logger)
		logger.Info("Using remote resolver", zap.String("url", cfg.Resolver.RemoteURL))

		return &backend{
			factory: session.Shared(client),
			shared:  client,
			health:  func() interface{} { return client.Breaker().Stats() },
		}, nil

	case config.ModeSnapshot:
		snap, err := snapshot.LoadFile(cfg.Resolver.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		store := snapshot.NewStore(snap).WithLogger(logger)

		watcher, err := snapshot.Watch(ctx, cfg.Resolver.SnapshotPath, store, logger)
		if err != nil {
			logger.Warn("Snapshot hot reload disabled", zap.Error(err))
		} else {
			s.closers = append(s.closers, watcher.Close)
		}

		return &backend{
			factory: session.Shared(store),
			shared:  store,
			health:  func() interface{} { return store.Snapshot().Stats() },
		}, nil

	case config.ModeCDP:
		url := cfg.Resolver.CDPURL
		if url == "" {
			l := launcher.New().Headless(true)
			launched, err := l.Launch()
			if err != nil {
				return nil, fmt.Errorf("failed to launch browser: %w", err)
			}
			s.closers = append(s.closers, func() error {
				l.Kill()
				return nil
			})
			url = launched
		}

		r, err := cdp.Connect(ctx, url, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, r.Close)

		return &backend{
			factory: session.Shared(r),
			shared:  r,
		}, nil
	}

	return nil, fmt.Errorf("unknown resolver mode %q", cfg.Resolver.Mode)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every session and releases
// the backend
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var err error
	if s.http != nil {
		if e := s.http.Shutdown(ctx); e != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(e))
			err = e
		}
	}

	s.sessions.Close()
	s.closeBackends()
	s.tracer.Close()

	_ = s.logger.Sync()
	return err
}

func (s *Server) closeBackends() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("Failed to release backend", zap.Error(err))
		}
	}
	s.closers = nil
	s.cancel()
}

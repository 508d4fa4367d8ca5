package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roadcare/vigil/internal/config"
	"github.com/roadcare/vigil/internal/database"
)

// storeTimeout bounds every store call made from a request handler.
const storeTimeout = 5 * time.Second

func contextWithStoreTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// Server is the inference collaborator: mock model inference plus
// session bookkeeping and user accounts.
type Server struct {
	cfg      *config.Server
	logger   *zap.SugaredLogger
	registry *Registry
	store    database.Store
	metrics  *Metrics
	auth     *authManager

	http *http.Server
}

func New(cfg *config.Server, store database.Store, registry *Registry, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if registry == nil {
		registry = NewRegistry(0)
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		metrics:  NewMetrics(),
		auth:     newAuthManager(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/detect", s.handleDetect)
	mux.HandleFunc("/api/detect/batch", s.handleDetectBatch)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/session/start", s.handleSessionStart)
	mux.HandleFunc("/api/session/end", s.handleSessionEnd)
	mux.HandleFunc("/api/session/history", s.handleSessionHistory)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
	mux.HandleFunc("/api/auth/me", s.handleCurrentUser)
	mux.HandleFunc("/", s.handleNotFound)

	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.withCORS(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) maxBatchImages() int {
	if s.cfg != nil && s.cfg.MaxBatchImages > 0 {
		return s.cfg.MaxBatchImages
	}
	return 10
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	origin := "*"
	if s.cfg != nil && s.cfg.CORSOrigins != "" {
		origin = s.cfg.CORSOrigins
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Infow("inference server listening",
		"addr", s.http.Addr, "models", s.registry.Loaded(), "store", s.cfg.Store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

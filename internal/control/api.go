package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roadcare/vigil/internal/events"
	"github.com/roadcare/vigil/internal/models"
	"github.com/roadcare/vigil/internal/monitor"
)

// MonitorService is the agent surface the control plane drives.
// *monitor.Monitor satisfies it.
type MonitorService interface {
	StartMonitoring(ctx context.Context, interval time.Duration) error
	StopMonitoring()
	AnalyzeSingle(ctx context.Context, model models.Model) (models.DetectionResult, error)
	DismissAlert()
	Status() monitor.StatusReport
	Bus() *events.Bus
	CollaboratorHealth(ctx context.Context) (*models.HealthResponse, error)
}

var _ MonitorService = (*monitor.Monitor)(nil)

// Server is the agent's local HTTP control plane: lifecycle endpoints
// plus a live websocket event stream.
type Server struct {
	addr   string
	svc    MonitorService
	hub    *Hub
	logger *zap.SugaredLogger

	http *http.Server
}

func NewServer(addr, instance string, svc MonitorService, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		addr:   addr,
		svc:    svc,
		hub:    NewHub(instance, logger),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/monitor/start", s.handleStart)
	mux.HandleFunc("/api/monitor/stop", s.handleStop)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/alert/dismiss", s.handleDismiss)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/ws", s.hub)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
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

// Run serves until ctx is cancelled, streaming bus events to websocket
// clients for the duration.
func (s *Server) Run(ctx context.Context) error {
	detach := s.hub.Attach(s.svc.Bus())
	defer detach()

	s.logger.Infow("control plane listening", "addr", s.addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorw("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, models.ErrorResponse{
		Status:    models.OutcomeError,
		Message:   message,
		Timestamp: models.FormatWireTime(time.Now()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Status())
}

type startRequest struct {
	IntervalMS int `json:"intervalMs,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty body starts with the configured interval.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.IntervalMS != 0 && (req.IntervalMS < 1000 || req.IntervalMS > 10000) {
		s.writeError(w, http.StatusBadRequest, "intervalMs must be within 1000..10000")
		return
	}

	interval := time.Duration(req.IntervalMS) * time.Millisecond
	if err := s.svc.StartMonitoring(r.Context(), interval); err != nil {
		s.logger.Errorw("monitoring start failed", "error", err)
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.svc.StopMonitoring()
	s.writeJSON(w, http.StatusOK, s.svc.Status())
}

type analyzeRequest struct {
	Model models.Model `json:"model,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req analyzeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Model != "" && !req.Model.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown model "+string(req.Model))
		return
	}

	result, err := s.svc.AnalyzeSingle(r.Context(), req.Model)
	if err != nil {
		s.logger.Warnw("single analysis failed", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result.ToWire())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.svc.DismissAlert()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": models.OutcomeSuccess})
}

// handleHealth reports agent liveness plus, best effort, whether the
// inference collaborator answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	collaborator := "healthy"
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.svc.CollaboratorHealth(ctx); err != nil {
		collaborator = "unreachable"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"collaborator": collaborator,
		"wsClients":    s.hub.ClientCount(),
		"timestamp":    models.FormatWireTime(time.Now()),
	})
}

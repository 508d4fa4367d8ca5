package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roadcare/vigil/internal/database"
	"github.com/roadcare/vigil/internal/models"
)

type sessionStartRequest struct {
	Settings map[string]any `json:"settings,omitempty"`
}

type sessionEndRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req sessionStartRequest
	if r.Body != nil {
		// An empty body starts a session with default settings.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	model := models.DefaultModel
	if v, ok := req.Settings["model"].(string); ok && models.Model(v).Valid() {
		model = models.Model(v)
	}

	now := time.Now()
	session := &models.MonitorSession{
		ID:        models.NewSessionID(now),
		Model:     model,
		StartedAt: now,
		Status:    models.SessionActive,
	}
	if userID, ok := s.auth.userID(r); ok {
		session.UserID = userID
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	err := s.store.StartSession(ctx, session)
	if errors.Is(err, database.ErrDuplicateSession) {
		// Two starts inside the same second; disambiguate.
		session.ID = fmt.Sprintf("%s_%s", session.ID, uuid.NewString()[:8])
		err = s.store.StartSession(ctx, session)
	}
	if err != nil {
		s.logger.Errorw("session not started", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	s.logger.Infow("session started", "session", session.ID, "model", model)
	s.writeJSON(w, http.StatusOK, models.SessionActionResponse{
		Status:    models.OutcomeSuccess,
		SessionID: session.ID,
		Action:    models.SessionActionStarted,
		Timestamp: models.FormatWireTime(now),
		Message:   "Detection session started successfully",
		SessionData: map[string]any{
			"startTime": models.FormatWireTime(now),
			"settings":  req.Settings,
		},
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	summary, err := s.store.EndSession(ctx, req.SessionID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, database.ErrSessionEnded):
		s.writeError(w, http.StatusConflict, "Session already ended")
		return
	case err != nil:
		s.logger.Errorw("session not ended", "session", req.SessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}

	now := time.Now()
	s.logger.Infow("session ended", "session", req.SessionID, "frames", summary.TotalFrames)
	s.writeJSON(w, http.StatusOK, models.SessionActionResponse{
		Status:    models.OutcomeSuccess,
		SessionID: req.SessionID,
		Action:    models.SessionActionEnded,
		Timestamp: models.FormatWireTime(now),
		Message:   "Detection session ended successfully",
		SessionData: map[string]any{
			"endTime": models.FormatWireTime(now),
			"summary": summary,
		},
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// A persistent store holds other drivers' sessions; only the dev
	// in-memory store serves history anonymously.
	if s.cfg.Store == "postgres" {
		if _, ok := s.auth.userID(r); !ok {
			s.writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	entries, err := s.store.History(ctx, limit)
	if err != nil {
		s.logger.Errorw("history query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get session history")
		return
	}

	totalDrowsy := 0
	for _, e := range entries {
		totalDrowsy += e.DrowsyFrames
	}
	if entries == nil {
		entries = []models.SessionHistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, models.SessionHistoryResponse{
		Status:                models.OutcomeSuccess,
		Sessions:              entries,
		TotalSessions:         len(entries),
		TotalDrowsyDetections: totalDrowsy,
		Timestamp:             models.FormatWireTime(time.Now()),
	})
}

package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/roadcare/vigil/internal/database"
	"github.com/roadcare/vigil/internal/models"
)

const serverVersion = "1.0.0"

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

// decodeImage validates one base64 image payload: an optional data-URL
// prefix is stripped, the rest must decode to a parseable JPEG or PNG.
func decodeImage(data string) (image.Config, error) {
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return image.Config{}, &models.ValidationError{Field: "image", Message: "not valid base64"}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return image.Config{}, &models.ValidationError{Field: "image", Message: "not a decodable image"}
	}
	return cfg, nil
}

// classify runs one mock inference and shapes the wire response.
func (s *Server) classify(model models.Model, sessionID string) models.DetectResponse {
	status, confidence, bbox, elapsed := s.registry.Infer(model)
	now := time.Now()

	result := models.DetectionResult{
		ID:             fmt.Sprintf("%s_%d", model, now.UnixMilli()),
		Timestamp:      now,
		Status:         status,
		Confidence:     confidence,
		ModelUsed:      model,
		InferenceTime:  elapsed,
		Bbox:           bbox,
		AlertTriggered: models.DeriveAlertTriggered(status, confidence),
		SessionID:      sessionID,
	}

	s.metrics.RecordFrame(status, elapsed)
	if sessionID != "" {
		s.recordEvent(&result)
	}
	return result.ToWire()
}

// recordEvent persists a detection into its session, best effort: an
// unknown session id is not an error for the detect endpoints.
func (s *Server) recordEvent(result *models.DetectionResult) {
	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	err := s.store.RecordEvent(ctx, &models.SessionEvent{
		SessionID:      result.SessionID,
		DetectionID:    result.ID,
		Status:         result.Status,
		Confidence:     result.Confidence,
		ModelUsed:      result.ModelUsed,
		AlertTriggered: result.AlertTriggered,
		Timestamp:      result.Timestamp,
	})
	if err != nil && err != database.ErrNotFound {
		s.logger.Warnw("event not recorded", "session", result.SessionID, "error", err)
	}
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest, "No image data provided")
		return
	}

	model := req.Model
	if model == "" {
		model = models.DefaultModel
	}
	if !s.registry.IsLoaded(model) {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Model %s not available", model))
		return
	}

	cfg, err := decodeImage(req.Image)
	if err != nil {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest, "Invalid image data format")
		return
	}
	s.logger.Infow("image received", "width", cfg.Width, "height", cfg.Height, "model", model)

	resp := s.classify(model, req.SessionID)
	s.logger.Infow("detection completed",
		"status", resp.IsDrowsy, "confidence", resp.Confidence, "model", model)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetectBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.BatchDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) == 0 {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest, "No images data provided")
		return
	}
	if max := s.maxBatchImages(); len(req.Images) > max {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Batch size too large (max %d images)", max))
		return
	}

	model := req.Model
	if model == "" {
		model = models.DefaultModel
	}
	if !s.registry.IsLoaded(model) {
		s.metrics.RecordError()
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Model %s not available", model))
		return
	}

	started := time.Now()
	results := make([]models.DetectResponse, 0, len(req.Images))
	var totalInference time.Duration
	for i, img := range req.Images {
		if _, err := decodeImage(img); err != nil {
			s.metrics.RecordError()
			results = append(results, models.DetectResponse{
				Status:    models.OutcomeError,
				Message:   fmt.Sprintf("Error processing image %d: invalid image data", i),
				Timestamp: models.FormatWireTime(time.Now()),
				Index:     i,
			})
			continue
		}
		resp := s.classify(model, req.SessionID)
		resp.Index = i
		results = append(results, resp)
		totalInference += time.Duration(resp.InferenceTime * float64(time.Second))
	}

	summary := summarizeBatch(results)
	s.logger.Infow("batch completed", "images", len(results), "elapsed", time.Since(started))
	s.writeJSON(w, http.StatusOK, models.BatchDetectResponse{
		Status:             models.OutcomeSuccess,
		Results:            results,
		Summary:            summary,
		TotalInferenceTime: models.Round3(totalInference.Seconds()),
		ModelUsed:          model,
		Timestamp:          models.FormatWireTime(time.Now()),
		SessionID:          req.SessionID,
	})
}

func summarizeBatch(results []models.DetectResponse) models.BatchSummary {
	summary := models.BatchSummary{TotalDetections: len(results)}
	var confidences float64
	for _, r := range results {
		if r.Status != models.OutcomeSuccess {
			continue
		}
		confidences += r.Confidence
		if models.ParseStatus(r.IsDrowsy) == models.StatusDrowsy {
			summary.DrowsyDetections++
		}
	}
	if summary.TotalDetections > 0 {
		summary.AlertRate = models.Round3(float64(summary.DrowsyDetections) / float64(summary.TotalDetections))
		summary.AverageConfidence = models.Round3(confidences / float64(summary.TotalDetections))
	}
	return summary
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:       "healthy",
		Timestamp:    models.FormatWireTime(time.Now()),
		ModelsLoaded: s.registry.Loaded(),
		Server:       "vigil-server",
		Mode:         "mock_inference",
		Version:      serverVersion,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	infos := s.registry.Infos()
	s.writeJSON(w, http.StatusOK, models.ModelsResponse{
		Status:      models.OutcomeSuccess,
		Models:      infos,
		TotalModels: len(infos),
		Timestamp:   models.FormatWireTime(time.Now()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, models.ErrorResponse{
		Status:    models.OutcomeError,
		Message:   "Endpoint not found",
		Timestamp: models.FormatWireTime(time.Now()),
		ErrorCode: "NOT_FOUND",
	})
}

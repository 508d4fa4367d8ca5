package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

func testFrame() *models.DetectionFrame {
	return &models.DetectionFrame{
		ID:         "frame-1",
		CapturedAt: time.Now(),
		Payload:    []byte("not-really-jpeg-but-bytes"),
		Width:      640,
		Height:     480,
		Size:       25,
	}
}

func TestDetectMapsResponse(t *testing.T) {
	frame := testFrame()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/detect" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req models.DetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || string(decoded) != string(frame.Payload) {
			t.Errorf("image payload mangled: %v", err)
		}
		if req.Model != models.ModelFasterRCNN || req.SessionID != "session_1" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(models.DetectResponse{
			ID:             "faster_rcnn_1787000000000",
			Timestamp:      "2026-08-23T10:00:00.250000",
			IsDrowsy:       "drowsy",
			Confidence:     0.912,
			ModelUsed:      models.ModelFasterRCNN,
			InferenceTime:  0.154,
			Bbox:           &models.BoundingBox{X: 10, Y: 20, Width: 100, Height: 120},
			AlertTriggered: true,
			SessionID:      "session_1",
			Status:         models.OutcomeSuccess,
		})
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	result, err := c.Detect(context.Background(), frame, models.ModelFasterRCNN, "session_1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if result.Status != models.StatusDrowsy {
		t.Errorf("status = %q", result.Status)
	}
	if result.InferenceTime != 154*time.Millisecond {
		t.Errorf("inference time = %v", result.InferenceTime)
	}
	if result.Bbox == nil || result.Bbox.Width != 100 {
		t.Errorf("bbox = %+v", result.Bbox)
	}
	if result.IsSynthetic {
		t.Error("real result flagged synthetic")
	}
}

func TestDetectFallsBackOnServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error","message":"model crashed"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Fallback: true}, nil)
	result, err := c.Detect(context.Background(), testFrame(), models.ModelYOLO, "session_9")
	if err != nil {
		t.Fatalf("fallback must swallow transport failure, got %v", err)
	}
	if !result.IsSynthetic {
		t.Error("fallback result not flagged synthetic")
	}
	if result.ModelUsed != models.ModelYOLO || result.SessionID != "session_9" {
		t.Errorf("fallback lost request context: %+v", result)
	}
	if !result.Status.Valid() {
		t.Errorf("fallback status = %q", result.Status)
	}
}

func TestDetectPropagatesErrorWhenFallbackDisabled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	_, err := c.Detect(context.Background(), testFrame(), "", "")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusBadGateway {
		t.Errorf("status code = %d", te.StatusCode)
	}
}

func TestDetectErrorOutcomeTriggersFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with an error outcome still counts as a failed detection.
		json.NewEncoder(w).Encode(models.ErrorResponse{
			Status:    models.OutcomeError,
			Message:   "invalid image data",
			Timestamp: models.FormatWireTime(time.Now()),
		})
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Fallback: true}, nil)
	result, err := c.Detect(context.Background(), testFrame(), models.ModelVGG16, "")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !result.IsSynthetic {
		t.Error("error outcome must synthesize a result")
	}
}

func TestDetectUnreachableCollaborator(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Fallback: true}, nil)
	result, err := c.Detect(context.Background(), testFrame(), "", "")
	if err != nil {
		t.Fatalf("fallback must cover network failure, got %v", err)
	}
	if !result.IsSynthetic {
		t.Error("expected synthetic result")
	}
}

func TestDetectBatchBounded(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:0"}, nil)

	frames := make([]*models.DetectionFrame, models.MaxBatchImages+1)
	for i := range frames {
		frames[i] = testFrame()
	}
	_, err := c.DetectBatch(context.Background(), frames, "", "")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	if _, err := c.DetectBatch(context.Background(), nil, "", ""); err == nil {
		t.Error("empty batch accepted")
	}
}

func TestDetectBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.BatchDetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Images) != 2 {
			t.Errorf("images = %d, want 2", len(req.Images))
		}
		json.NewEncoder(w).Encode(models.BatchDetectResponse{
			Status: models.OutcomeSuccess,
			Results: []models.DetectResponse{
				{ID: "yolo_1", IsDrowsy: "safe", Status: models.OutcomeSuccess},
				{ID: "yolo_2", IsDrowsy: "drowsy", Status: models.OutcomeSuccess, Index: 1},
			},
			Summary: models.BatchSummary{
				TotalDetections:  2,
				DrowsyDetections: 1,
				AlertRate:        0.5,
			},
			TotalInferenceTime: 0.31,
			ModelUsed:          models.ModelYOLO,
		})
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	resp, err := c.DetectBatch(context.Background(), []*models.DetectionFrame{testFrame(), testFrame()}, models.ModelYOLO, "")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if resp.Summary.DrowsyDetections != 1 || len(resp.Results) != 2 {
		t.Errorf("batch response = %+v", resp)
	}
}

func TestHealthAndModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			json.NewEncoder(w).Encode(models.HealthResponse{
				Status:       "healthy",
				ModelsLoaded: []string{"yolo", "vgg16"},
			})
		case "/api/models":
			json.NewEncoder(w).Encode(models.ModelsResponse{
				Status:      models.OutcomeSuccess,
				Models:      []models.ModelInfo{{Name: models.ModelYOLO, IsAvailable: true}},
				TotalModels: 1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "healthy" || len(health.ModelsLoaded) != 2 {
		t.Errorf("health = %+v", health)
	}

	catalog, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if catalog.TotalModels != 1 || catalog.Models[0].Name != models.ModelYOLO {
		t.Errorf("catalog = %+v", catalog)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/start":
			json.NewEncoder(w).Encode(models.SessionActionResponse{
				Status:    models.OutcomeSuccess,
				SessionID: "session_1787000000",
				Action:    models.SessionActionStarted,
			})
		case "/api/session/end":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			if req["sessionId"] != "session_1787000000" {
				t.Errorf("end request = %+v", req)
			}
			json.NewEncoder(w).Encode(models.SessionActionResponse{
				Status:    models.OutcomeSuccess,
				SessionID: "session_1787000000",
				Action:    models.SessionActionEnded,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	id, err := c.StartSession(context.Background(), map[string]any{"model": "yolo"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if id != "session_1787000000" {
		t.Errorf("session id = %q", id)
	}
	resp, err := c.EndSession(context.Background(), id)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if resp.Action != models.SessionActionEnded {
		t.Errorf("action = %q", resp.Action)
	}
}

func TestWaitForReady(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(models.HealthResponse{Status: "healthy"})
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	if err := c.WaitForReady(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("wait for ready: %v", err)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("health polled %d times, want at least 3", calls)
	}
}

func TestWaitForReadyTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "never ready", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL}, nil)
	if err := c.WaitForReady(context.Background(), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}

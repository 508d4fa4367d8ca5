package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/models"
)

// Config tunes the inference client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Fallback substitutes a locally synthesized result on transport
	// failure so the capture loop keeps running through collaborator
	// downtime. Production deployments may disable it.
	Fallback bool
}

// Client talks to the inference collaborator over JSON/HTTP. Calls share no
// mutable state and may run concurrently.
type Client struct {
	baseURL  string
	http     *http.Client
	fallback *Fallback
	logger   *zap.SugaredLogger
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
	if cfg.Fallback {
		c.fallback = NewFallback(0)
	}
	return c
}

// Detect sends one frame for classification. On transport failure it returns
// a synthetic result instead of an error, unless fallback is disabled, in
// which case the *TransportError propagates.
func (c *Client) Detect(ctx context.Context, frame *models.DetectionFrame, model models.Model, sessionID string) (models.DetectionResult, error) {
	if model == "" {
		model = models.DefaultModel
	}
	req := models.DetectRequest{
		Image:     base64.StdEncoding.EncodeToString(frame.Payload),
		Model:     model,
		SessionID: sessionID,
	}

	var resp models.DetectResponse
	err := c.postJSON(ctx, "detect", "/api/detect", req, &resp)
	if err == nil && resp.Status != models.OutcomeSuccess {
		err = &TransportError{Op: "detect", Err: fmt.Errorf("collaborator outcome %q", resp.Status)}
	}
	if err == nil {
		result := resp.ToResult(time.Now())
		if verr := result.Validate(); verr != nil {
			err = &TransportError{Op: "detect", Err: verr}
		} else {
			return result, nil
		}
	}

	if c.fallback == nil {
		return models.DetectionResult{}, err
	}
	c.logger.Warnw("detection fell back to synthetic result", "error", err)
	return c.fallback.Result(model, sessionID, frame.Width, frame.Height), nil
}

// DetectBatch classifies up to MaxBatchImages frames in one call. There is no
// synthetic fallback for batches; transport failures propagate.
func (c *Client) DetectBatch(ctx context.Context, frames []*models.DetectionFrame, model models.Model, sessionID string) (*models.BatchDetectResponse, error) {
	if len(frames) == 0 {
		return nil, &models.ValidationError{Field: "images", Message: "empty batch"}
	}
	if len(frames) > models.MaxBatchImages {
		return nil, &models.ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("batch size %d exceeds maximum %d", len(frames), models.MaxBatchImages),
		}
	}
	if model == "" {
		model = models.DefaultModel
	}

	req := models.BatchDetectRequest{Model: model, SessionID: sessionID}
	for _, f := range frames {
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(f.Payload))
	}

	var resp models.BatchDetectResponse
	if err := c.postJSON(ctx, "batch", "/api/detect/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health fetches the collaborator health snapshot.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var resp models.HealthResponse
	if err := c.getJSON(ctx, "health", "/api/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Models fetches the collaborator model catalog.
func (c *Client) Models(ctx context.Context) (*models.ModelsResponse, error) {
	var resp models.ModelsResponse
	if err := c.getJSON(ctx, "models", "/api/models", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSession opens a collaborator-side session and returns its id.
func (c *Client) StartSession(ctx context.Context, settings map[string]any) (string, error) {
	req := map[string]any{}
	if settings != nil {
		req["settings"] = settings
	}
	var resp models.SessionActionResponse
	if err := c.postJSON(ctx, "session-start", "/api/session/start", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &TransportError{Op: "session-start", Err: errors.New("no session id in response")}
	}
	return resp.SessionID, nil
}

// EndSession closes a collaborator-side session.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*models.SessionActionResponse, error) {
	req := map[string]any{"sessionId": sessionID}
	var resp models.SessionActionResponse
	if err := c.postJSON(ctx, "session-end", "/api/session/end", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// Command vigil-smoke exercises a running inference server end to end:
// health, models, auth, single and batch detection, and the session
// lifecycle. It is a manual smoke check, not part of the test suite.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

var (
	baseURL  = flag.String("url", "http://localhost:5000", "Inference server base URL")
	model    = flag.String("model", "yolo", "Model to exercise")
	email    = flag.String("email", "smoke@example.com", "Account email")
	password = flag.String("password", "Smoke1234", "Account password")
)

func main() {
	flag.Parse()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("vigil inference server smoke check")
	fmt.Println("target:", *baseURL)
	fmt.Println(strings.Repeat("=", 60))

	frame := generateFrame()
	fmt.Printf("✓ Generated test frame: %d bytes\n", len(frame))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"health", checkHealth},
		{"models", checkModels},
		{"register", checkRegister},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			log.Fatalf("FAIL %s: %v", step.name, err)
		}
	}

	cookies, err := login()
	if err != nil {
		log.Fatalf("FAIL login: %v", err)
	}

	sessionID, err := startSession(cookies)
	if err != nil {
		log.Fatalf("FAIL session start: %v", err)
	}

	if err := detectOne(frame, sessionID); err != nil {
		log.Fatalf("FAIL detect: %v", err)
	}
	if err := detectBatch(frame, sessionID); err != nil {
		log.Fatalf("FAIL batch detect: %v", err)
	}
	if err := endSession(sessionID); err != nil {
		log.Fatalf("FAIL session end: %v", err)
	}
	if err := checkHistory(sessionID); err != nil {
		log.Fatalf("FAIL session history: %v", err)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("✓ all smoke checks passed")
}

func checkHealth() error {
	fmt.Println("\n[smoke] GET /api/health")
	body, err := get("/api/health")
	if err != nil {
		return err
	}
	var health struct {
		Status       string   `json:"status"`
		ModelsLoaded []string `json:"modelsLoaded"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("status %q", health.Status)
	}
	fmt.Printf("✓ healthy, models loaded: %v\n", health.ModelsLoaded)
	return nil
}

func checkModels() error {
	fmt.Println("\n[smoke] GET /api/models")
	body, err := get("/api/models")
	if err != nil {
		return err
	}
	var catalog struct {
		TotalModels int `json:"totalModels"`
		Models      []struct {
			Name     string  `json:"name"`
			Accuracy float64 `json:"accuracy"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &catalog); err != nil {
		return fmt.Errorf("parsing catalog: %w", err)
	}
	found := false
	for _, m := range catalog.Models {
		if m.Name == *model {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("model %q not in catalog of %d", *model, catalog.TotalModels)
	}
	fmt.Printf("✓ catalog lists %d models including %s\n", catalog.TotalModels, *model)
	return nil
}

func checkRegister() error {
	fmt.Println("\n[smoke] POST /api/auth/register")
	resp, body, err := post("/api/auth/register", map[string]string{
		"email":    *email,
		"username": "smoketest",
		"password": *password,
	}, nil)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		fmt.Println("✓ account created")
	case http.StatusConflict:
		fmt.Println("✓ account already exists")
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func login() ([]*http.Cookie, error) {
	fmt.Println("\n[smoke] POST /api/auth/login")
	resp, body, err := post("/api/auth/login", map[string]string{
		"email":    *email,
		"password": *password,
	}, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no session cookie received")
	}
	fmt.Println("✓ logged in, session cookie received")
	return cookies, nil
}

func startSession(cookies []*http.Cookie) (string, error) {
	fmt.Println("\n[smoke] POST /api/session/start")
	resp, body, err := post("/api/session/start", map[string]any{
		"settings": map[string]string{"model": *model},
	}, cookies)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var action struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &action); err != nil {
		return "", fmt.Errorf("parsing session response: %w", err)
	}
	if action.SessionID == "" {
		return "", fmt.Errorf("empty session id in %s", body)
	}
	fmt.Printf("✓ session started: %s\n", action.SessionID)
	return action.SessionID, nil
}

func detectOne(frame []byte, sessionID string) error {
	fmt.Println("\n[smoke] POST /api/detect")
	resp, body, err := post("/api/detect", map[string]any{
		"image":     base64.StdEncoding.EncodeToString(frame),
		"model":     *model,
		"sessionId": sessionID,
	}, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var result struct {
		ID             string  `json:"id"`
		IsDrowsy       string  `json:"isDrowsy"`
		Confidence     float64 `json:"confidence"`
		InferenceTime  float64 `json:"inferenceTime"`
		AlertTriggered bool    `json:"alertTriggered"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	fmt.Printf("✓ detection %s: status=%s confidence=%.3f inference=%.3fs alert=%v\n",
		result.ID, result.IsDrowsy, result.Confidence, result.InferenceTime, result.AlertTriggered)
	return nil
}

func detectBatch(frame []byte, sessionID string) error {
	fmt.Println("\n[smoke] POST /api/detect/batch")
	encoded := base64.StdEncoding.EncodeToString(frame)
	resp, body, err := post("/api/detect/batch", map[string]any{
		"images":    []string{encoded, encoded, encoded},
		"model":     *model,
		"sessionId": sessionID,
	}, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	var batch struct {
		Results []json.RawMessage `json:"results"`
		Summary struct {
			TotalDetections  int `json:"totalDetections"`
			DrowsyDetections int `json:"drowsyDetections"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		return fmt.Errorf("parsing batch: %w", err)
	}
	if len(batch.Results) != 3 {
		return fmt.Errorf("got %d results, want 3", len(batch.Results))
	}
	fmt.Printf("✓ batch of %d processed, %d flagged\n",
		batch.Summary.TotalDetections, batch.Summary.DrowsyDetections)
	return nil
}

func endSession(sessionID string) error {
	fmt.Println("\n[smoke] POST /api/session/end")
	resp, body, err := post("/api/session/end", map[string]string{
		"sessionId": sessionID,
	}, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	fmt.Printf("✓ session ended: %s\n", sessionID)
	return nil
}

func checkHistory(sessionID string) error {
	fmt.Println("\n[smoke] GET /api/session/history")
	body, err := get("/api/session/history")
	if err != nil {
		return err
	}
	var history struct {
		TotalSessions int `json:"totalSessions"`
		Sessions      []struct {
			ID          string `json:"id"`
			TotalFrames int    `json:"totalFrames"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		return fmt.Errorf("parsing history: %w", err)
	}
	for _, s := range history.Sessions {
		if s.ID == sessionID {
			fmt.Printf("✓ history shows session %s with %d frames (of %d sessions)\n",
				s.ID, s.TotalFrames, history.TotalSessions)
			return nil
		}
	}
	return fmt.Errorf("session %s missing from history of %d", sessionID, history.TotalSessions)
}

func get(path string) ([]byte, error) {
	resp, err := http.Get(*baseURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func post(path string, payload any, cookies []*http.Cookie) (*http.Response, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, *baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

// generateFrame renders a noisy gradient JPEG so detection gets a
// plausible cabin-camera frame rather than a flat color.
func generateFrame() []byte {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			base := uint8(40 + (x+y)%120)
			img.Set(x, y, color.RGBA{
				R: base + uint8(rng.Intn(30)),
				G: base + uint8(rng.Intn(30)),
				B: base / 2,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		log.Fatalf("encoding test frame: %v", err)
	}
	return buf.Bytes()
}

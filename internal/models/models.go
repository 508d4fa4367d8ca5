package models

import (
	"fmt"
	"time"
)

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionActive and SessionEnded are the two states a monitoring session
// moves through.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// MonitorSession is one monitoring run as stored by the collaborator.
type MonitorSession struct {
	ID        string     `json:"id"`
	UserID    int        `json:"user_id,omitempty"`
	Model     Model      `json:"model"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Notes     string     `json:"notes,omitempty"`
}

// NewSessionID builds the canonical session identifier for a start time.
func NewSessionID(t time.Time) string {
	return fmt.Sprintf("session_%d", t.Unix())
}

// SessionEvent is one recorded detection inside a session.
type SessionEvent struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	DetectionID    string    `json:"detection_id"`
	Status         Status    `json:"status"`
	Confidence     float64   `json:"confidence"`
	ModelUsed      Model     `json:"model_used"`
	AlertTriggered bool      `json:"alert_triggered"`
	Timestamp      time.Time `json:"timestamp"`
}

// SessionSummary aggregates a session's recorded events in the shape the
// end-session response carries.
type SessionSummary struct {
	Duration        float64 `json:"duration"`
	TotalFrames     int     `json:"totalFrames"`
	DrowsyFrames    int     `json:"drowsyFrames"`
	AlertsTriggered int     `json:"alertsTriggered"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session response actions.
const (
	SessionActionStarted = "started"
	SessionActionEnded   = "ended"
)

// SessionActionResponse is the body of the session start/end endpoints.
type SessionActionResponse struct {
	Status      string         `json:"status"`
	SessionID   string         `json:"sessionId"`
	Action      string         `json:"action"`
	Timestamp   string         `json:"timestamp"`
	Message     string         `json:"message,omitempty"`
	SessionData map[string]any `json:"sessionData,omitempty"`
}

// SessionHistoryEntry is one row of GET /api/session/history.
type SessionHistoryEntry struct {
	ID                string  `json:"id"`
	StartTime         string  `json:"startTime"`
	EndTime           string  `json:"endTime,omitempty"`
	Duration          float64 `json:"duration"`
	TotalFrames       int     `json:"totalFrames"`
	DrowsyFrames      int     `json:"drowsyFrames"`
	AlertsTriggered   int     `json:"alertsTriggered"`
	AverageConfidence float64 `json:"averageConfidence"`
	ModelUsed         Model   `json:"modelUsed"`
	IsActive          bool    `json:"isActive"`
}

// SessionHistoryResponse is the body of GET /api/session/history.
type SessionHistoryResponse struct {
	Status                string                `json:"status"`
	Sessions              []SessionHistoryEntry `json:"sessions"`
	TotalSessions         int                   `json:"totalSessions"`
	TotalDrowsyDetections int                   `json:"totalDrowsyDetections"`
	Timestamp             string                `json:"timestamp"`
}

package database

import (
	"context"
	"sync"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

// Memory is the in-memory Store used in dev mode and tests. Everything
// is lost on restart, which matches the demo-grade persistence the mock
// collaborator offered.
type Memory struct {
	mu       sync.Mutex
	nextUser int
	users    map[int]memoryUser
	sessions map[string]*memorySession
	order    []string
}

type memoryUser struct {
	user models.User
	hash string
}

type memorySession struct {
	session models.MonitorSession
	events  []models.SessionEvent
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int]memoryUser),
		sessions: make(map[string]*memorySession),
	}
}

func (m *Memory) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.user.Email == email {
			return nil, ErrDuplicateEmail
		}
		if u.user.Username == username {
			return nil, ErrDuplicateUsername
		}
	}

	m.nextUser++
	user := models.User{
		ID:        m.nextUser,
		Email:     email,
		Username:  username,
		CreatedAt: time.Now(),
	}
	m.users[user.ID] = memoryUser{user: user, hash: passwordHash}
	return &user, nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.user.Email == email {
			user := u.user
			return &user, u.hash, nil
		}
	}
	return nil, "", ErrNotFound
}

func (m *Memory) UserByID(ctx context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	user := u.user
	return &user, nil
}

func (m *Memory) StartSession(ctx context.Context, session *models.MonitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return ErrDuplicateSession
	}
	rec := &memorySession{session: *session}
	rec.session.Status = models.SessionActive
	m.sessions[session.ID] = rec
	m.order = append(m.order, session.ID)
	return nil
}

func (m *Memory) EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.session.Status == models.SessionEnded {
		return nil, ErrSessionEnded
	}
	now := time.Now()
	rec.session.EndedAt = &now
	rec.session.Status = models.SessionEnded

	summary := summarize(rec)
	return &summary, nil
}

func (m *Memory) RecordEvent(ctx context.Context, event *models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[event.SessionID]
	if !ok {
		return ErrNotFound
	}
	ev := *event
	ev.ID = int64(len(rec.events) + 1)
	rec.events = append(rec.events, ev)
	return nil
}

// History returns sessions newest first.
func (m *Memory) History(ctx context.Context, limit int) ([]models.SessionHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]models.SessionHistoryEntry, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) >= limit {
			break
		}
		rec := m.sessions[m.order[i]]
		entries = append(entries, historyEntry(rec))
	}
	return entries, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func summarize(rec *memorySession) models.SessionSummary {
	summary := models.SessionSummary{TotalFrames: len(rec.events)}
	end := time.Now()
	if rec.session.EndedAt != nil {
		end = *rec.session.EndedAt
	}
	summary.Duration = models.Round3(end.Sub(rec.session.StartedAt).Seconds())
	for _, ev := range rec.events {
		if ev.Status == models.StatusDrowsy {
			summary.DrowsyFrames++
		}
		if ev.AlertTriggered {
			summary.AlertsTriggered++
		}
	}
	return summary
}

func historyEntry(rec *memorySession) models.SessionHistoryEntry {
	summary := summarize(rec)
	entry := models.SessionHistoryEntry{
		ID:              rec.session.ID,
		StartTime:       models.FormatWireTime(rec.session.StartedAt),
		Duration:        summary.Duration,
		TotalFrames:     summary.TotalFrames,
		DrowsyFrames:    summary.DrowsyFrames,
		AlertsTriggered: summary.AlertsTriggered,
		ModelUsed:       rec.session.Model,
		IsActive:        rec.session.Status == models.SessionActive,
	}
	if rec.session.EndedAt != nil {
		entry.EndTime = models.FormatWireTime(*rec.session.EndedAt)
	}
	if len(rec.events) > 0 {
		total := 0.0
		for _, ev := range rec.events {
			total += ev.Confidence
		}
		entry.AverageConfidence = models.Round3(total / float64(len(rec.events)))
	}
	return entry
}

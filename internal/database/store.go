package database

import (
	"context"
	"errors"

	"github.com/roadcare/vigil/internal/models"
)

// Sentinel errors shared by every store implementation. Handlers map
// them onto HTTP status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateSession  = errors.New("session id already exists")
	ErrSessionEnded      = errors.New("session already ended")
)

// Store persists user accounts, monitoring sessions and their recorded
// detection events. Two implementations exist: Postgres for deployments
// and an in-memory store for dev mode and tests.
type Store interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, string, error)
	UserByID(ctx context.Context, id int) (*models.User, error)

	StartSession(ctx context.Context, session *models.MonitorSession) error
	EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	RecordEvent(ctx context.Context, event *models.SessionEvent) error
	History(ctx context.Context, limit int) ([]models.SessionHistoryEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

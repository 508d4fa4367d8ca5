package database

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Postgres is the production Store, backed by pgx through database/sql.
type Postgres struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// OpenPostgres connects, verifies the connection and applies any pending
// schema migrations.
func OpenPostgres(ctx context.Context, dsn string, maxConns int, logger *zap.SugaredLogger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "configuring migrations")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying migrations")
	}

	logger.Infow("postgres store ready", "max_conns", maxConns)
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	user := models.User{Email: email, Username: username}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		email, username, passwordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "users_email_key"):
			return nil, ErrDuplicateEmail
		case strings.Contains(msg, "users_username_key"):
			return nil, ErrDuplicateUsername
		}
		return nil, errors.Wrap(err, "inserting user")
	}
	return &user, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var user models.User
	var hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.Username, &hash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "querying user by email")
	}
	return &user, hash, nil
}

func (p *Postgres) UserByID(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, username, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Username, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying user by id")
	}
	return &user, nil
}

func (p *Postgres) StartSession(ctx context.Context, session *models.MonitorSession) error {
	var userID any
	if session.UserID > 0 {
		userID = session.UserID
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, model, started_at, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, userID, session.Model, session.StartedAt, models.SessionActive,
	)
	if err != nil {
		if strings.Contains(err.Error(), "sessions_pkey") {
			return ErrDuplicateSession
		}
		return errors.Wrap(err, "inserting session")
	}
	return nil
}

func (p *Postgres) EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var status string
	var started time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT status, started_at FROM sessions WHERE id = $1`, sessionID,
	).Scan(&status, &started)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying session")
	}
	if status == models.SessionEnded {
		return nil, ErrSessionEnded
	}

	now := time.Now()
	if _, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $1, status = $2 WHERE id = $3`,
		now, models.SessionEnded, sessionID,
	); err != nil {
		return nil, errors.Wrap(err, "ending session")
	}

	summary := models.SessionSummary{Duration: models.Round3(now.Sub(started).Seconds())}
	err = p.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $2),
		        COUNT(*) FILTER (WHERE alert_triggered)
		 FROM events WHERE session_id = $1`,
		sessionID, models.StatusDrowsy,
	).Scan(&summary.TotalFrames, &summary.DrowsyFrames, &summary.AlertsTriggered)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating session events")
	}
	return &summary, nil
}

func (p *Postgres) RecordEvent(ctx context.Context, event *models.SessionEvent) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO events (session_id, detection_id, status, confidence, model_used, alert_triggered, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.SessionID, event.DetectionID, event.Status, event.Confidence,
		event.ModelUsed, event.AlertTriggered, event.Timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "events_session_id_fkey") {
			return ErrNotFound
		}
		return errors.Wrap(err, "inserting event")
	}
	return nil
}

func (p *Postgres) History(ctx context.Context, limit int) ([]models.SessionHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT s.id, s.model, s.started_at, s.ended_at, s.status,
		        COUNT(e.id),
		        COUNT(e.id) FILTER (WHERE e.status = $2),
		        COUNT(e.id) FILTER (WHERE e.alert_triggered),
		        COALESCE(AVG(e.confidence), 0)
		 FROM sessions s LEFT JOIN events e ON e.session_id = s.id
		 GROUP BY s.id
		 ORDER BY s.started_at DESC
		 LIMIT $1`,
		limit, models.StatusDrowsy,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying session history")
	}
	defer rows.Close()

	var entries []models.SessionHistoryEntry
	for rows.Next() {
		var entry models.SessionHistoryEntry
		var started time.Time
		var ended sql.NullTime
		var status string
		var avg float64
		if err := rows.Scan(&entry.ID, &entry.ModelUsed, &started, &ended, &status,
			&entry.TotalFrames, &entry.DrowsyFrames, &entry.AlertsTriggered, &avg); err != nil {
			return nil, errors.Wrap(err, "scanning session row")
		}
		entry.StartTime = models.FormatWireTime(started)
		entry.IsActive = status == models.SessionActive
		entry.AverageConfidence = models.Round3(avg)
		end := time.Now()
		if ended.Valid {
			entry.EndTime = models.FormatWireTime(ended.Time)
			end = ended.Time
		}
		entry.Duration = models.Round3(end.Sub(started).Seconds())
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

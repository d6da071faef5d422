package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/domain"
)

// Queries wraps all SQL access to the chat schema.
type Queries struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Queries {
	return &Queries{db: db}
}

func (q *Queries) UpsertUser(ctx context.Context, authID, email, name, avatarURL string) (domain.User, error) {
	const query = `
		INSERT INTO users (auth_id, email, name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (auth_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name,
		    avatar_url = EXCLUDED.avatar_url, updated_at = now()
		RETURNING id, auth_id, email, name, avatar_url, created_at, updated_at`

	var u domain.User
	err := q.db.QueryRow(ctx, query, authID, email, name, avatarURL).Scan(
		&u.ID, &u.AuthID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (q *Queries) GetUserByAuthID(ctx context.Context, authID string) (domain.User, error) {
	const query = `
		SELECT id, auth_id, email, name, avatar_url, created_at, updated_at
		FROM users WHERE auth_id = $1`

	var u domain.User
	err := q.db.QueryRow(ctx, query, authID).Scan(
		&u.ID, &u.AuthID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *Queries) CreateSession(ctx context.Context, userID uuid.UUID, title string) (domain.ChatSession, error) {
	const query = `
		INSERT INTO chat_sessions (user_id, title)
		VALUES ($1, $2)
		RETURNING id, user_id, title, created_at, updated_at`

	var s domain.ChatSession
	err := q.db.QueryRow(ctx, query, userID, title).Scan(
		&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (q *Queries) GetSessionByID(ctx context.Context, id uuid.UUID) (domain.ChatSession, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = $1`

	var s domain.ChatSession
	err := q.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (q *Queries) ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChatSession, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.ChatSession{}
	for rows.Next() {
		var s domain.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (q *Queries) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (q *Queries) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (q *Queries) SetSessionTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE chat_sessions SET title = $2, updated_at = now() WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("set session title: %w", err)
	}
	return nil
}

func (q *Queries) AddMessage(ctx context.Context, sessionID uuid.UUID, role, content string, cost decimal.Decimal) (domain.Message, error) {
	const query = `
		INSERT INTO messages (session_id, role, content, cost)
		VALUES ($1, $2, $3, $4)
		RETURNING id, session_id, role, content, cost, created_at`

	var m domain.Message
	err := q.db.QueryRow(ctx, query, sessionID, role, content, cost).Scan(
		&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Cost, &m.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("add message: %w", err)
	}
	return m, nil
}

func (q *Queries) GetSessionMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	const query = `
		SELECT id, session_id, role, content, cost, created_at
		FROM messages WHERE session_id = $1
		ORDER BY created_at ASC`

	rows, err := q.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Cost, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (q *Queries) CountMessagesByRole(ctx context.Context, sessionID uuid.UUID, role string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1 AND role = $2`,
		sessionID, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

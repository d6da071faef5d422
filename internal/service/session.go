package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/om01deshmukh/Atheron-AI/internal/config"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/sources"
)

// SessionQueries is the SQL surface SessionService runs on.
type SessionQueries interface {
	CreateSession(ctx context.Context, userID uuid.UUID, title string) (domain.ChatSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (domain.ChatSession, error)
	ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChatSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	TouchSession(ctx context.Context, id uuid.UUID) error
	SetSessionTitle(ctx context.Context, id uuid.UUID, title string) error
	AddMessage(ctx context.Context, sessionID uuid.UUID, role, content string, cost decimal.Decimal) (domain.Message, error)
	GetSessionMessages(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error)
	CountMessagesByRole(ctx context.Context, sessionID uuid.UUID, role string) (int64, error)
}

// SessionService owns session and message persistence, including the
// title-on-first-message rule: a session's title is derived from its first
// user message exactly once, later saves only refresh the timestamp.
type SessionService struct {
	queries SessionQueries
}

func NewSessionService(queries SessionQueries) *SessionService {
	return &SessionService{queries: queries}
}

func (s *SessionService) Create(ctx context.Context, userID uuid.UUID, title string) (domain.ChatSession, error) {
	if title == "" {
		title = config.DefaultSessionTitle
	}
	return s.queries.CreateSession(ctx, userID, title)
}

func (s *SessionService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ChatSession, error) {
	return s.queries.ListSessionsByUser(ctx, userID)
}

// Get returns the session only when it belongs to userID.
func (s *SessionService) Get(ctx context.Context, userID, sessionID uuid.UUID) (domain.ChatSession, error) {
	session, err := s.queries.GetSessionByID(ctx, sessionID)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if session.UserID != userID {
		return domain.ChatSession{}, domain.ErrForbidden
	}
	return session, nil
}

func (s *SessionService) Delete(ctx context.Context, userID, sessionID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.queries.DeleteSession(ctx, sessionID)
}

func (s *SessionService) GetMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]domain.Message, error) {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.queries.GetSessionMessages(ctx, sessionID)
}

// SaveMessage persists one turn. Assistant content passes through the source
// extractor first: stored text never carries the wire delimiters, no matter
// which transport the save came from. For the first user message of a
// session it also derives the title; every save refreshes the session
// timestamp.
func (s *SessionService) SaveMessage(ctx context.Context, userID, sessionID uuid.UUID, role, content string, cost decimal.Decimal) (domain.Message, error) {
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return domain.Message{}, domain.ErrInvalidRole
	}
	if role == domain.RoleAssistant {
		content, _ = sources.Extract(content)
	}
	if content == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.queries.AddMessage(ctx, sessionID, role, content, cost)
	if err != nil {
		return domain.Message{}, err
	}

	if role == domain.RoleUser {
		count, err := s.queries.CountMessagesByRole(ctx, sessionID, domain.RoleUser)
		if err != nil {
			return domain.Message{}, fmt.Errorf("count user messages: %w", err)
		}
		if count == 1 {
			title := domain.GenerateTitle(content, config.TitleMaxLen)
			if err := s.queries.SetSessionTitle(ctx, sessionID, title); err != nil {
				return domain.Message{}, err
			}
			return msg, nil
		}
	}

	if err := s.queries.TouchSession(ctx, sessionID); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

package service

import (
	"context"
	"errors"

	"github.com/om01deshmukh/Atheron-AI/internal/auth"
	"github.com/om01deshmukh/Atheron-AI/internal/domain"
	"github.com/om01deshmukh/Atheron-AI/internal/repository"
)

// RegistrationNotifier is told about first-time users; may be nil.
type RegistrationNotifier interface {
	Registration(authID, name string)
}

type UserService struct {
	queries  *repository.Queries
	notifier RegistrationNotifier
}

func NewUserService(queries *repository.Queries, notifier RegistrationNotifier) *UserService {
	return &UserService{queries: queries, notifier: notifier}
}

// Ensure resolves an authenticated identity to a stored user, creating the
// row on first sight. Persistence fails closed: an empty identity is
// rejected rather than attached to a default account.
func (s *UserService) Ensure(ctx context.Context, identity auth.Identity) (domain.User, error) {
	if identity.Subject == "" {
		return domain.User{}, domain.ErrUnauthorized
	}

	_, err := s.queries.GetUserByAuthID(ctx, identity.Subject)
	firstSeen := errors.Is(err, domain.ErrUserNotFound)

	user, err := s.queries.UpsertUser(ctx, identity.Subject, identity.Email, identity.Name, identity.AvatarURL)
	if err != nil {
		return domain.User{}, err
	}

	if firstSeen && s.notifier != nil {
		s.notifier.Registration(user.AuthID, user.Name)
	}
	return user, nil
}

package service

import (
	"context"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"
)

// IdentityService answers "does this principal exist and who is it" for the
// booking core.
type IdentityService struct {
	users      *repository.UserRepository
	developers *repository.DeveloperRepository
}

func NewIdentityService(users *repository.UserRepository, developers *repository.DeveloperRepository) *IdentityService {
	return &IdentityService{users: users, developers: developers}
}

func (s *IdentityService) User(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *IdentityService) Developer(ctx context.Context, id uint) (*models.DeveloperProfile, error) {
	return s.developers.GetByID(ctx, id)
}

// DeveloperForUser returns the profile owned by userID.
func (s *IdentityService) DeveloperForUser(ctx context.Context, userID uint) (*models.DeveloperProfile, error) {
	return s.developers.GetByUserID(ctx, userID)
}

// ResolveOwner returns the full user behind ref, loading it when ref only
// carries an id.
func (s *IdentityService) ResolveOwner(ctx context.Context, ref models.DeveloperRef) (*models.User, error) {
	if ref.IsZero() {
		return nil, domain.NotFound("developer owner")
	}
	if u, ok := ref.Resolved(); ok {
		return u, nil
	}
	return s.users.GetByID(ctx, ref.UserID())
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

// Service exposes the profile surface. The reward_points it returns is the
// cached projection; the ledger remains the source of truth.
type Service interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateShippingAddress(ctx context.Context, id uuid.UUID, address string) (*models.User, error)
}

type service struct {
	repo Repository
}

// NewService wires a users service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}
	return user, nil
}

func (s *service) UpdateShippingAddress(ctx context.Context, id uuid.UUID, address string) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if err := s.repo.UpdateShippingAddress(ctx, id, address); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating shipping address")
	}
	return s.GetProfile(ctx, id)
}

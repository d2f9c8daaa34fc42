package service

import (
	"context"
	"fmt"

	apperrors "storefront/internal/errors"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// LeadService captures and lists contact-form submissions.
type LeadService interface {
	Submit(ctx context.Context, name, email string, message *string) (*model.Lead, error)
	List(ctx context.Context) ([]model.Lead, error)
}

type leadService struct {
	repo repository.LeadRepository
}

// NewLeadService creates a new lead service.
func NewLeadService(repo repository.LeadRepository) LeadService {
	return &leadService{repo: repo}
}

// Submit stores a lead. An empty message is stored as NULL.
func (s *leadService) Submit(ctx context.Context, name, email string, message *string) (*model.Lead, error) {
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name & email required", apperrors.ErrInvalidInput)
	}
	if message != nil && *message == "" {
		message = nil
	}

	lead := &model.Lead{Name: name, Email: email, Message: message}
	if err := s.repo.Create(ctx, lead); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

// List returns all leads, newest first.
func (s *leadService) List(ctx context.Context) ([]model.Lead, error) {
	leads, err := s.repo.ListNewestFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

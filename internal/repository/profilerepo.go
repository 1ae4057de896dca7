// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository provides CRUD access to identity profiles.
type ProfileRepository interface {
	// Create inserts a new profile.
	Create(ctx context.Context, p *model.Profile) error
	// GetByID loads a profile by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// GetByEmail loads a profile by email.
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)
	// Update persists mutable profile fields. Role is immutable and never written.
	Update(ctx context.Context, p *model.Profile) error
	// ListByScope returns profiles matching a geographic scope predicate.
	ListByScope(ctx context.Context, scope model.NotificationScope, value string) ([]model.Profile, error)
}

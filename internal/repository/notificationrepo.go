package repository

import (
	"context"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/gofrs/uuid/v5"
)

// NotificationRepository stores per-recipient notification documents.
type NotificationRepository interface {
	// Create inserts a single notification row.
	Create(ctx context.Context, n *model.Notification) error

	// ListByUser returns a user's notifications, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)

	// MarkRead flips status to read. The only permitted mutation.
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

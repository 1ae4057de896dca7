package postgres

import (
	"context"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/gofrs/uuid/v5"
)

// NotificationRepo implements NotificationRepository using PostgreSQL.
type NotificationRepo struct{ db *DB }

// NewNotificationRepo constructs a notification repository.
func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts a single notification row.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	const q = `
INSERT INTO notifications (id, user_id, type, title, message, scope, scope_value, read, related_model, related_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	var relModel *string
	var relID *uuid.UUID
	if n.RelatedTo != nil {
		relModel = &n.RelatedTo.Model
		relID = &n.RelatedTo.ID
	}
	_, err := r.db.Pool.Exec(ctx, q,
		n.ID, n.UserID, n.Type, n.Title, n.Message,
		string(n.Scope), n.ScopeValue, n.Read, relModel, relID,
	)
	return err
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Notification, error) {
	const q = `
SELECT id, user_id, type, title, message, scope, scope_value, read, related_model, related_id, created_at
FROM notifications
WHERE user_id=$1
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n        model.Notification
			scope    string
			relModel *string
			relID    *uuid.UUID
		)
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&scope, &n.ScopeValue, &n.Read, &relModel, &relID, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Scope = model.NotificationScope(scope)
		if relModel != nil && relID != nil {
			n.RelatedTo = &model.RelatedRef{Model: *relModel, ID: *relID}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips read to true; rows never flip back.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	const q = `UPDATE notifications SET read=true WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
)

func TestNotificationRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	n := &model.Notification{
		ID:         uuid.Must(uuid.NewV4()),
		UserID:     uuid.Must(uuid.NewV4()),
		Type:       "announcement",
		Title:      "Vaccination drive",
		Message:    "Clinic opens Saturday",
		Scope:      model.ScopeState,
		ScopeValue: "Lagos",
	}

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(n.ID, n.UserID, n.Type, n.Title, n.Message,
			string(n.Scope), n.ScopeValue, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), n))
}

func TestNotificationRepo_ListByUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)
	userID := uuid.Must(uuid.NewV4())

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "type", "title", "message", "scope", "scope_value",
		"read", "related_model", "related_id", "created_at",
	}).AddRow(
		uuid.Must(uuid.NewV4()), userID, "announcement", "t", "m", "state", "Lagos",
		false, nil, nil, time.Now(),
	)
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id=\$1`).
		WithArgs(userID).
		WillReturnRows(rows)

	got, err := r.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.ScopeState, got[0].Scope)
	require.Nil(t, got[0].RelatedTo)
}

func TestNotificationRepo_MarkRead(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)
	userID := uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE notifications SET read=true WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkRead(context.Background(), userID, id))

	mock.ExpectExec(`UPDATE notifications SET read=true WHERE id=\$1 AND user_id=\$2`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkRead(context.Background(), userID, id), errs.ErrNotFound)
}

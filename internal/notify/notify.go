// Package notify fans out notification documents by recipient or geography.
package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carebridge/carebridge/internal/errs"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/repository"
)

const fanoutWorkers = 8

// publisher is the slice of the Redis API used for live delivery.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Payload is the shared content of a dispatch; userId is stamped per recipient.
type Payload struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	RelatedTo *model.RelatedRef `json:"relatedTo,omitempty"`
}

// Dispatcher creates notification rows and mirrors them to a Redis channel
// for live delivery. Fan-out is not transactional: a partial failure leaves a
// subset of recipients notified, with failure counts logged and no rollback
// or retry.
type Dispatcher struct {
	profiles repository.ProfileRepository
	store    repository.NotificationRepository
	pub      publisher
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a dispatcher. pub may be nil to disable live mirroring.
func New(profiles repository.ProfileRepository, store repository.NotificationRepository, pub publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{profiles: profiles, store: store, pub: pub, log: log, now: time.Now}
}

// Create writes a single notification for a direct recipient.
func (d *Dispatcher) Create(ctx context.Context, userID uuid.UUID, p Payload) (uuid.UUID, error) {
	n, err := d.build(userID, model.ScopePersonal, "", p)
	if err != nil {
		return uuid.Nil, err
	}
	if err := d.store.Create(ctx, n); err != nil {
		return uuid.Nil, err
	}
	d.mirror(ctx, n)
	return n.ID, nil
}

// CreateScoped queries identities matching the geographic scope and writes one
// notification per match, all sharing the payload. Only lga, state and
// national are recognized. Returns the ids of the writes that succeeded.
func (d *Dispatcher) CreateScoped(ctx context.Context, scope model.NotificationScope, value string, p Payload) ([]uuid.UUID, error) {
	switch scope {
	case model.ScopeLGA, model.ScopeState, model.ScopeNational:
	default:
		return nil, errs.ErrInvalidScope
	}

	recipients, err := d.profiles.ListByScope(ctx, scope, value)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(recipients))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutWorkers)
	for i := range recipients {
		i := i
		g.Go(func() error {
			n, err := d.build(recipients[i].ID, scope, value, p)
			if err == nil {
				err = d.store.Create(gctx, n)
			}
			if err != nil {
				// independent writes: count and keep going
				failed.Add(1)
				d.log.Warn("notify: fan-out write failed",
					zap.String("userId", recipients[i].ID.String()),
					zap.Error(err),
				)
				return nil
			}
			ids[i] = n.ID
			d.mirror(gctx, n)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = append(out, id)
		}
	}
	if n := failed.Load(); n > 0 {
		d.log.Warn("notify: partial delivery",
			zap.String("scope", string(scope)),
			zap.String("value", value),
			zap.Int("delivered", len(out)),
			zap.Int64("failed", n),
		)
	}
	return out, nil
}

func (d *Dispatcher) build(userID uuid.UUID, scope model.NotificationScope, value string, p Payload) (*model.Notification, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &model.Notification{
		ID:         id,
		UserID:     userID,
		Type:       p.Type,
		Title:      p.Title,
		Message:    p.Message,
		Scope:      scope,
		ScopeValue: value,
		RelatedTo:  p.RelatedTo,
		CreatedAt:  d.now().UTC(),
	}, nil
}

// mirror publishes the notification for live subscribers. Best-effort.
func (d *Dispatcher) mirror(ctx context.Context, n *model.Notification) {
	if d.pub == nil {
		return
	}
	msg, err := json.Marshal(n)
	if err != nil {
		d.log.Warn("notify: marshal for publish", zap.Error(err))
		return
	}
	if err := d.pub.Publish(ctx, "notifications:"+n.UserID.String(), msg).Err(); err != nil {
		d.log.Warn("notify: publish failed",
			zap.String("userId", n.UserID.String()),
			zap.Error(err),
		)
	}
}

// Package presence maintains best-effort online/offline records in Redis.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/model"
)

// redisCmdable is the slice of the Redis API the synchronizer uses.
// Implemented by *redis.Client and by test fakes.
type redisCmdable interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Synchronizer upserts presence records keyed by identity id. Presence is a
// derived record, not an identity source of truth: every write is
// fire-and-forget, failures are logged and swallowed, and there is no
// ordering guarantee against profile-store writes. A crashed client leaves a
// stale online record; no heartbeat or TTL reaps it.
type Synchronizer struct {
	rdb redisCmdable
	log *zap.Logger
	now func() time.Time
}

// New constructs a synchronizer over a Redis client.
func New(rdb redisCmdable, log *zap.Logger) *Synchronizer {
	return &Synchronizer{rdb: rdb, log: log, now: time.Now}
}

func key(role model.Role, id uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", role, id)
}

// Online upserts {status: online, lastActive: now, updatedAt: now}. Creating
// and updating are the same write; calling it on every mount is safe.
func (s *Synchronizer) Online(ctx context.Context, role model.Role, id uuid.UUID) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	err := s.rdb.HSet(ctx, key(role, id),
		"status", string(model.PresenceOnline),
		"lastActive", now,
		"updatedAt", now,
	).Err()
	if err != nil {
		s.log.Warn("presence: online upsert failed",
			zap.String("userId", id.String()),
			zap.Error(err),
		)
	}
}

// Offline flips the record to offline. Idempotent: the unload hook and the
// teardown path may both fire, and writing offline twice is harmless.
// lastActive is left at its online value.
func (s *Synchronizer) Offline(ctx context.Context, role model.Role, id uuid.UUID) {
	err := s.rdb.HSet(ctx, key(role, id),
		"status", string(model.PresenceOffline),
		"updatedAt", s.now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		s.log.Warn("presence: offline upsert failed",
			zap.String("userId", id.String()),
			zap.Error(err),
		)
	}
}

// Get reads the presence record, or nil when none exists.
func (s *Synchronizer) Get(ctx context.Context, role model.Role, id uuid.UUID) (*model.PresenceRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, key(role, id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec := &model.PresenceRecord{
		UserID: id,
		Status: model.PresenceStatus(fields["status"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["lastActive"]); err == nil {
		rec.LastActive = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updatedAt"]); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

// LogActivity appends an entry to the identity's activity feed. Best-effort.
func (s *Synchronizer) LogActivity(ctx context.Context, id uuid.UUID, action string) {
	entry := fmt.Sprintf("%s|%s", s.now().UTC().Format(time.RFC3339Nano), action)
	if err := s.rdb.LPush(ctx, "loggedActivities:"+id.String(), entry).Err(); err != nil {
		s.log.Warn("presence: activity log failed",
			zap.String("userId", id.String()),
			zap.Error(err),
		)
	}
}

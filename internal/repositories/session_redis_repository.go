package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/models"
)

// SessionRedisRepo persists session snapshots as JSON strings with a TTL.
type SessionRedisRepo struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewSessionRedisRepo(client *redis.Client, prefix string, ttl time.Duration) *SessionRedisRepo {
	if prefix == "" {
		prefix = "paydesk:session:"
	}
	return &SessionRedisRepo{Client: client, Prefix: prefix, TTL: ttl}
}

func (r *SessionRedisRepo) Load(ctx context.Context, key string) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	raw, err := r.Client.Get(ctx, r.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, models.ErrNoRecord
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func (r *SessionRedisRepo) Save(ctx context.Context, key string, snap models.SessionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.Prefix+key, raw, r.TTL).Err()
}

func (r *SessionRedisRepo) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.Prefix+key).Err()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/m-sameh0/go-relay/internal/models"
)

// Cap per-user notification lists so an abandoned account cannot grow
// without bound. Retention beyond this is an external concern.
const maxNotificationsPerUser = 500

// RedisStore is the durable backend for deployments that already run Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a URL of the form
// redis://[:password@]host:port/db
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func presenceKey(userID string) string {
	return "gorelay:presence:" + userID
}

func notificationsKey(userID string) string {
	return "gorelay:notifications:" + userID
}

func (s *RedisStore) UpsertPresence(ctx context.Context, p *models.Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, presenceKey(p.UserID), data, 0).Err()
}

func (s *RedisStore) GetPresence(ctx context.Context, userID string) (*models.Presence, error) {
	data, err := s.client.Get(ctx, presenceKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p := &models.Presence{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RedisStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	key := notificationsKey(n.UserID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxNotificationsPerUser-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, n := range ns {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		key := notificationsKey(n.UserID)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxNotificationsPerUser-1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) NotificationsForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	items, err := s.client.LRange(ctx, notificationsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(items))
	for _, item := range items {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
var _ Store = (*SQLiteStore)(nil)

package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carportal/carportal/internal/portal/carform"
)

const redisKeyPrefix = "carportal:draft:"

// RedisStore keeps drafts in Redis. Every write refreshes the TTL of the draft
// and of its images so both expire together.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// RedisOptions mirrors the connection settings the store needs.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis opens a client and verifies connectivity.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("drafts: ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

func draftKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func imageKey(sessionID, imageID string) string {
	return redisKeyPrefix + sessionID + ":img:" + imageID
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*carform.Form, error) {
	raw, err := s.client.Get(ctx, draftKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drafts: load draft: %w", err)
	}
	var form carform.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("drafts: decode draft: %w", err)
	}
	return &form, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, form *carform.Form) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("drafts: encode draft: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, draftKey(sessionID), raw, s.ttl)
		for _, img := range form.Images {
			pipe.Expire(ctx, imageKey(sessionID, img.ID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("drafts: save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	form, err := s.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	keys := []string{draftKey(sessionID)}
	if form != nil {
		for _, img := range form.Images {
			keys = append(keys, imageKey(sessionID, img.ID))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drafts: delete draft: %w", err)
	}
	return nil
}

func (s *RedisStore) PutImage(ctx context.Context, sessionID, imageID string, data []byte) error {
	if err := s.client.Set(ctx, imageKey(sessionID, imageID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("drafts: put image: %w", err)
	}
	return nil
}

func (s *RedisStore) Image(ctx context.Context, sessionID, imageID string) ([]byte, error) {
	data, err := s.client.Get(ctx, imageKey(sessionID, imageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drafts: load image: %w", err)
	}
	return data, nil
}

func (s *RedisStore) DeleteImages(ctx context.Context, sessionID string, imageIDs ...string) error {
	if len(imageIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(imageIDs))
	for _, id := range imageIDs {
		keys = append(keys, imageKey(sessionID, id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drafts: delete images: %w", err)
	}
	return nil
}

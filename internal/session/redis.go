package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helpdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "helpdesk:session:"

// RedisStore keeps each session as one JSON value with a TTL
type RedisStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	maxTurns int
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(rdb *redis.Client, ttl time.Duration, maxTurns int) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, maxTurns: maxTurns}
}

func sessionKey(senderID string) string {
	return sessionPrefix + senderID
}

// History loads the sender's turns; a missing key is an empty session
func (s *RedisStore) History(ctx context.Context, senderID string) ([]models.ConversationTurn, error) {
	rec, err := s.load(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return rec.Turns, nil
}

func (s *RedisStore) load(ctx context.Context, senderID string) (record, error) {
	data, err := s.rdb.Get(ctx, sessionKey(senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return record{Turns: []models.ConversationTurn{}}, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("failed to load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if rec.Turns == nil {
		rec.Turns = []models.ConversationTurn{}
	}
	return rec, nil
}

func (s *RedisStore) save(ctx context.Context, senderID string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKey(senderID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Append adds turns, keeps the newest ones and refreshes the TTL
func (s *RedisStore) Append(ctx context.Context, senderID string, turns ...models.ConversationTurn) error {
	rec, err := s.load(ctx, senderID)
	if err != nil {
		return err
	}
	rec.Turns = trim(append(rec.Turns, turns...), s.maxTurns)
	return s.save(ctx, senderID, rec)
}

// ClientType returns the client type stored with the session
func (s *RedisStore) ClientType(ctx context.Context, senderID string) (models.ClientType, error) {
	rec, err := s.load(ctx, senderID)
	if err != nil {
		return models.ClientUnknown, err
	}
	return rec.ClientType, nil
}

// SetClientType stores the client type with the session and refreshes the TTL
func (s *RedisStore) SetClientType(ctx context.Context, senderID string, clientType models.ClientType) error {
	rec, err := s.load(ctx, senderID)
	if err != nil {
		return err
	}
	rec.ClientType = clientType
	return s.save(ctx, senderID, rec)
}

// Reset deletes the sender's session
func (s *RedisStore) Reset(ctx context.Context, senderID string) error {
	if err := s.rdb.Del(ctx, sessionKey(senderID)).Err(); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

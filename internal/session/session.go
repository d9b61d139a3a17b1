// Package session keeps per-sender conversation history for the bot channels
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store holds conversation turns and the resolved client type keyed by sender id.
// Sessions expire after the configured TTL of inactivity. Trimming old turns keeps
// the client type.
type Store interface {
	History(ctx context.Context, senderID string) ([]models.ConversationTurn, error)
	Append(ctx context.Context, senderID string, turns ...models.ConversationTurn) error
	ClientType(ctx context.Context, senderID string) (models.ClientType, error)
	SetClientType(ctx context.Context, senderID string, clientType models.ClientType) error
	Reset(ctx context.Context, senderID string) error
}

// record is one stored session
type record struct {
	Turns      []models.ConversationTurn `json:"turns"`
	ClientType models.ClientType         `json:"client_type,omitempty"`
}

// NewStore returns a Redis store when REDIS_URL is set, an in-process store otherwise
func NewStore(cfg *config.Config, logger zerolog.Logger) (Store, error) {
	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	if cfg.RedisURL == "" {
		logger.Info().Dur("ttl", ttl).Msg("Using in-memory session store")
		return NewMemoryStore(ttl, cfg.SessionMaxTurns), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Dur("ttl", ttl).Msg("Using Redis session store")
	return NewRedisStore(redis.NewClient(opts), ttl, cfg.SessionMaxTurns), nil
}

// trim keeps the newest maxTurns turns
func trim(turns []models.ConversationTurn, maxTurns int) []models.ConversationTurn {
	if maxTurns > 0 && len(turns) > maxTurns {
		return turns[len(turns)-maxTurns:]
	}
	return turns
}

// MemoryStore keeps sessions in a go-cache TTL map
type MemoryStore struct {
	cache    *cache.Cache
	maxTurns int
	mu       sync.Mutex
}

// NewMemoryStore creates an in-process store; expired sessions are purged every ttl/2
func NewMemoryStore(ttl time.Duration, maxTurns int) *MemoryStore {
	return &MemoryStore{
		cache:    cache.New(ttl, ttl/2),
		maxTurns: maxTurns,
	}
}

// History returns a copy of the sender's turns
func (s *MemoryStore) History(ctx context.Context, senderID string) ([]models.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(senderID).Turns, nil
}

// load returns a copy of the sender's record
func (s *MemoryStore) load(senderID string) record {
	x, found := s.cache.Get(senderID)
	if !found {
		return record{Turns: []models.ConversationTurn{}}
	}
	stored := x.(record)
	turns := make([]models.ConversationTurn, len(stored.Turns))
	copy(turns, stored.Turns)
	return record{Turns: turns, ClientType: stored.ClientType}
}

// Append adds turns and refreshes the session TTL
func (s *MemoryStore) Append(ctx context.Context, senderID string, turns ...models.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(senderID)
	rec.Turns = trim(append(rec.Turns, turns...), s.maxTurns)
	s.cache.Set(senderID, rec, cache.DefaultExpiration)
	return nil
}

// ClientType returns the client type resolved earlier in the conversation
func (s *MemoryStore) ClientType(ctx context.Context, senderID string) (models.ClientType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(senderID).ClientType, nil
}

// SetClientType remembers the client type and refreshes the session TTL
func (s *MemoryStore) SetClientType(ctx context.Context, senderID string, clientType models.ClientType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load(senderID)
	rec.ClientType = clientType
	s.cache.Set(senderID, rec, cache.DefaultExpiration)
	return nil
}

// Reset forgets the sender's conversation and client type
func (s *MemoryStore) Reset(ctx context.Context, senderID string) error {
	s.cache.Delete(senderID)
	return nil
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"verifyengine/internal/model"
)

// RedisStore is a Redis-backed Store, the production-recommended
// implementation for distributed worker deployments where multiple
// processes need to share token state. Grounded on the pack's
// RedisTRL revocation-list pattern: SET NX for atomic put-if-absent,
// GET for lookup, DEL for invalidation.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// tokenExpiryGrace keeps the Redis key alive past its logical TTL so
// Get can still read it and report TokenExpiredError, rather than
// letting Redis's own expiry silently turn an expired token into an
// indistinguishable redis.Nil.
const tokenExpiryGrace = 15 * time.Minute

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "qrtoken:"}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// storedBinding is the on-wire payload: the Binding plus the logical
// expiry time, kept separate from the key's physical Redis TTL.
type storedBinding struct {
	Binding
	ExpiresAt time.Time
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, token string, b Binding, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(storedBinding{Binding: b, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return false, fmt.Errorf("marshal token binding: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(token), payload, ttl+tokenExpiryGrace).Result()
	if err != nil {
		return false, fmt.Errorf("put-if-absent token: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Binding, bool, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Binding{}, false, nil
		}
		return Binding{}, false, fmt.Errorf("get token: %w", err)
	}
	var sb storedBinding
	if err := json.Unmarshal(raw, &sb); err != nil {
		return Binding{}, false, fmt.Errorf("decode token binding: %w", err)
	}
	if time.Now().After(sb.ExpiresAt) {
		return Binding{}, false, model.TokenExpiredError{Token: token}
	}
	return sb.Binding, true, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

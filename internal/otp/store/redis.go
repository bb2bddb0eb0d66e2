package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"imaro-auth/backend/internal/otp"
	"imaro-auth/backend/internal/otp/domain"
)

const (
	defaultKeyPrefix = "otp:phone"

	fieldCodeHash  = "code_hash"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"

	// expiredGrace keeps a key in Redis past its logical expiry so Verify can report
	// domain.ErrExpired instead of domain.ErrNotFound for a while.
	expiredGrace = 10 * time.Minute
)

// Script result codes.
const (
	verifyNotFound int64 = iota
	verifyExpired
	verifyExhausted
	verifyMatched
	verifyMismatch
)

// verifyScript runs the whole read-modify-write of Verify inside Redis so concurrent
// requests for one phone number are serialized by the server.
//
// KEYS[1] entry key; ARGV[1] candidate hash; ARGV[2] now (unix ms); ARGV[3] max attempts.
var verifyScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return {0, 0}
end
local v = redis.call('HMGET', key, 'code_hash', 'expires_at', 'attempts')
local now = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
if now > tonumber(v[2]) then
	redis.call('DEL', key)
	return {1, 0}
end
local attempts = tonumber(v[3])
if attempts >= max then
	redis.call('DEL', key)
	return {2, 0}
end
if v[1] == ARGV[1] then
	redis.call('DEL', key)
	return {3, 0}
end
attempts = redis.call('HINCRBY', key, 'attempts', 1)
if attempts >= max then
	redis.call('DEL', key)
	return {2, 0}
end
return {4, max - attempts}
`)

// RedisStore is a Store backed by one Redis hash per phone number.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
	now         func() time.Time
}

// NewRedisStore returns a RedisStore. An empty keyPrefix uses "otp:phone".
func NewRedisStore(client *redis.Client, keyPrefix string, maxAttempts int) *RedisStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// WithClock overrides the time source used for logical expiry. Intended for tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) key(phone string) string {
	return s.prefix + ":" + phone
}

// Issue implements Store.
func (s *RedisStore) Issue(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("otp store: ttl must be positive")
	}
	key := s.key(phone)
	expiresAt := s.now().Add(ttl)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCodeHash:  codeHash,
		fieldExpiresAt: expiresAt.UnixMilli(),
		fieldAttempts:  0,
	})
	pipe.PExpire(ctx, key, ttl+expiredGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp store: issue: %w", err)
	}
	return nil
}

// Verify implements Store.
func (s *RedisStore) Verify(ctx context.Context, phone, candidate string) error {
	res, err := verifyScript.Run(ctx, s.client,
		[]string{s.key(phone)},
		otp.HashCode(candidate), s.now().UnixMilli(), s.maxAttempts,
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("otp store: verify: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("otp store: verify: unexpected script result %v", res)
	}
	switch res[0] {
	case verifyNotFound:
		return domain.ErrNotFound
	case verifyExpired:
		return domain.ErrExpired
	case verifyExhausted:
		return domain.ErrAttemptsExceeded
	case verifyMatched:
		return nil
	case verifyMismatch:
		return &domain.MismatchError{Remaining: int(res[1])}
	default:
		return fmt.Errorf("otp store: verify: unknown result code %d", res[0])
	}
}

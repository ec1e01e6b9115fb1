package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultAttemptLogCap = 10000

const (
	failureStatusNotFound      int64 = -2
	failureStatusAlreadyLocked int64 = -1
)

// recordFailureScript increments the failed-attempt counter only when the
// account is not currently locked, and arms the lock in the same atomic
// step when the counter reaches the threshold. Two concurrent wrong-password
// requests therefore never lose an increment.
const recordFailureScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-2, 0}
end
local now = tonumber(ARGV[1])
local lock = tonumber(redis.call("HGET", KEYS[1], "lock_expiry") or "0")
if lock > now then
  return {-1, lock}
end
local count = redis.call("HINCRBY", KEYS[1], "failed_attempts", 1)
redis.call("HSET", KEYS[1], "updated_at", now)
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
if count >= threshold and duration > 0 then
  lock = now + duration
  redis.call("HSET", KEYS[1], "lock_expiry", lock)
  return {count, lock}
end
return {count, 0}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

const recordSuccessScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1],
  "failed_attempts", 0,
  "lock_expiry", 0,
  "last_login", ARGV[1],
  "updated_at", ARGV[1])
return 1
`

var recordSuccessLua = redis.NewScript(recordSuccessScript)

const clearLockoutScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1],
  "failed_attempts", 0,
  "lock_expiry", 0,
  "updated_at", ARGV[1])
return 1
`

var clearLockoutLua = redis.NewScript(clearLockoutScript)

// revokeTokenScript is the rotation compare-and-set: the transition from
// valid to revoked succeeds for exactly one caller.
const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

// Redis implements [Store] on a Redis backend.
//
//	Performance: every conditional update is a single Lua EVALSHA; plain
//	reads and writes are 1–3 commands.
type Redis struct {
	redis         redis.UniversalClient
	prefix        string
	attemptLogCap int64
}

// NewRedis creates a Redis-backed [Store]. prefix namespaces all keys;
// attemptLogCap bounds the retained login-attempt log (0 uses the default).
func NewRedis(client redis.UniversalClient, prefix string, attemptLogCap int) *Redis {
	if prefix == "" {
		prefix = "sc"
	}
	if attemptLogCap <= 0 {
		attemptLogCap = defaultAttemptLogCap
	}
	return &Redis{
		redis:         client,
		prefix:        prefix,
		attemptLogCap: int64(attemptLogCap),
	}
}

func (s *Redis) userKey(id string) string {
	return s.prefix + ":u:" + id
}

func (s *Redis) emailKey(email string) string {
	return s.prefix + ":e:" + strings.ToLower(email)
}

func (s *Redis) tokenKey(digest [32]byte) string {
	return s.prefix + ":rt:" + hex.EncodeToString(digest[:])
}

func (s *Redis) userTokensKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func (s *Redis) attemptsKey() string {
	return s.prefix + ":la"
}

func (s *Redis) CreateUser(ctx context.Context, u *User) error {
	ok, err := s.redis.SetNX(ctx, s.emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrDuplicateEmail
	}

	if err := s.redis.HSet(ctx, s.userKey(u.ID), userFields(u)...).Err(); err != nil {
		// Roll the index back so the address is not burned by a half-write.
		_ = s.redis.Del(ctx, s.emailKey(u.Email))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *Redis) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Redis) GetUserByID(ctx context.Context, id string) (*User, error) {
	m, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return userFromMap(m)
}

func (s *Redis) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.setUserFields(ctx, userID, fieldPasswordHash, hash)
}

func (s *Redis) SetUserActive(ctx context.Context, userID string, active bool) error {
	return s.setUserFields(ctx, userID, fieldActive, encodeBool(active))
}

func (s *Redis) setUserFields(ctx context.Context, userID string, pairs ...any) error {
	key := s.userKey(userID)

	exists, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	pairs = append(pairs, fieldUpdatedAt, time.Now().Unix())
	if err := s.redis.HSet(ctx, key, pairs...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (FailureOutcome, error) {
	result, err := recordFailureLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		time.Now().Unix(),
		threshold,
		int64(lockFor/time.Second),
	).Result()
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return FailureOutcome{}, fmt.Errorf("%w: invalid failure script response", ErrUnavailable)
	}
	code, okCode := parts[0].(int64)
	lock, okLock := parts[1].(int64)
	if !okCode || !okLock {
		return FailureOutcome{}, fmt.Errorf("%w: invalid failure script response", ErrUnavailable)
	}

	switch code {
	case failureStatusNotFound:
		return FailureOutcome{}, ErrNotFound
	case failureStatusAlreadyLocked:
		return FailureOutcome{AlreadyLocked: true, LockExpiry: lock}, nil
	default:
		return FailureOutcome{
			Attempts:   int(code),
			LockedNow:  lock != 0,
			LockExpiry: lock,
		}, nil
	}
}

func (s *Redis) RecordLoginSuccess(ctx context.Context, userID string) error {
	return s.runUserReset(ctx, recordSuccessLua, userID)
}

func (s *Redis) ClearLockout(ctx context.Context, userID string) error {
	return s.runUserReset(ctx, clearLockoutLua, userID)
}

func (s *Redis) runUserReset(ctx context.Context, script *redis.Script, userID string) error {
	result, err := script.Run(ctx, s.redis, []string{s.userKey(userID)}, time.Now().Unix()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if result == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	tokenKey := s.tokenKey(t.Digest)
	userKey := s.userTokensKey(t.UserID)
	expiresAt := time.Unix(t.ExpiresAt, 0)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey, tokenFields(t)...)
		pipe.ExpireAt(ctx, tokenKey, expiresAt)
		pipe.SAdd(ctx, userKey, hex.EncodeToString(t.Digest[:]))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *Redis) GetRefreshTokenByDigest(ctx context.Context, digest [32]byte) (*RefreshToken, error) {
	m, err := s.redis.HGetAll(ctx, s.tokenKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return tokenFromMap(m)
}

func (s *Redis) RevokeRefreshToken(ctx context.Context, digest [32]byte) error {
	result, err := revokeTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(digest)},
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch result {
	case -1:
		return ErrNotFound
	case 0:
		return ErrAlreadyRevoked
	default:
		return nil
	}
}

func (s *Redis) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	digests, err := s.redis.SMembers(ctx, s.userTokensKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	for _, encoded := range digests {
		raw, decErr := hex.DecodeString(encoded)
		if decErr != nil || len(raw) != 32 {
			continue
		}
		var digest [32]byte
		copy(digest[:], raw)

		switch err := s.RevokeRefreshToken(ctx, digest); {
		case err == nil:
			revoked++
		case errors.Is(err, ErrAlreadyRevoked), errors.Is(err, ErrNotFound):
			// Already revoked or expired out from under us: the end state
			// is what the caller asked for.
		default:
			return revoked, err
		}
	}

	return revoked, nil
}

func (s *Redis) DeleteExpiredRefreshTokens(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	deleted := 0

	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":rt:*", 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, key := range keys {
			fields, err := s.redis.HMGet(ctx, key, fieldExpiresAt, fieldUserID, fieldDigest).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}

			expiresAt, ok := fields[0].(string)
			if !ok {
				continue
			}
			exp, err := decodeInt64(expiresAt)
			if err != nil || exp > now {
				continue
			}

			if err := s.redis.Del(ctx, key).Err(); err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			deleted++

			userID, _ := fields[1].(string)
			digest, _ := fields[2].(string)
			if userID != "" && digest != "" {
				if err := s.redis.SRem(ctx, s.userTokensKey(userID), digest).Err(); err != nil {
					return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.reconcileTokenIndex(ctx); err != nil {
		return deleted, err
	}

	return deleted, nil
}

// reconcileTokenIndex drops index entries whose rows already expired via
// Redis TTL, so the per-user sets do not grow without bound.
func (s *Redis) reconcileTokenIndex(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":rtu:*", 500).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, indexKey := range keys {
			digests, err := s.redis.SMembers(ctx, indexKey).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			for _, encoded := range digests {
				exists, err := s.redis.Exists(ctx, s.prefix+":rt:"+encoded).Result()
				if err != nil {
					return fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
				if exists == 0 {
					if err := s.redis.SRem(ctx, indexKey, encoded).Err(); err != nil {
						return fmt.Errorf("%w: %v", ErrUnavailable, err)
					}
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Redis) InsertLoginAttempt(ctx context.Context, a *LoginAttempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.attemptsKey(), data)
		pipe.LTrim(ctx, s.attemptsKey(), 0, s.attemptLogCap-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *Redis) RecentLoginAttempts(ctx context.Context, limit int) ([]*LoginAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.redis.LRange(ctx, s.attemptsKey(), 0, int64(limit)-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*LoginAttempt{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	attempts := make([]*LoginAttempt, 0, len(rows))
	for _, row := range rows {
		var a LoginAttempt
		if err := json.Unmarshal([]byte(row), &a); err != nil {
			return nil, ErrCorruptRecord
		}
		attempts = append(attempts, &a)
	}

	return attempts, nil
}

// Ping returns a point-in-time availability check and its latency.
func (s *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

var _ Store = (*Redis)(nil)

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/repository"
)

var _ repository.LockStore = (*LockStore)(nil)

// DefaultKeyPrefix namespaces every key the store writes. The braces are a
// cluster hash tag: all keys of one store land in the same slot.
const DefaultKeyPrefix = "{oplock}:"

// expiredBatch bounds how many rows one deleteExpired script call removes.
const expiredBatch = 500

// Each lock is a hash at <prefix>lock:<id>; <prefix>expiry is a sorted set of
// ids scored by expires_at in unix milliseconds. Keys carry no native TTL, so
// rows disappear only through DeleteExpired or DeleteByID.
var (
	insertScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

	updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'completed_at', ARGV[4])
if ARGV[1] == 'completed' then
  redis.call('HSET', KEYS[1], 'result', ARGV[2])
  redis.call('HDEL', KEYS[1], 'error_message')
else
  redis.call('HSET', KEYS[1], 'error_message', ARGV[3])
  redis.call('HDEL', KEYS[1], 'result')
end
return 1
`)

	deleteScript = goredis.NewScript(`
local n = redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return n
`)

	// KEYS[1] is the expiry index, KEYS[i] for i > 1 the lock key of ARGV[i].
	// Ids rescored since they were listed are skipped.
	deleteExpiredScript = goredis.NewScript(`
local cutoff = tonumber(ARGV[1])
local n = 0
for i = 2, #KEYS do
  local score = redis.call('ZSCORE', KEYS[1], ARGV[i])
  if score and tonumber(score) < cutoff then
    redis.call('DEL', KEYS[i])
    redis.call('ZREM', KEYS[1], ARGV[i])
    n = n + 1
  end
end
return n
`)
)

// LockStore is a Redis-backed repository.LockStore.
type LockStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewLockStore creates a Redis-backed lock store. An empty prefix uses
// DefaultKeyPrefix; a prefix without a hash tag is wrapped in one, so
// "tenant-a:" becomes "{tenant-a}:".
func NewLockStore(client goredis.UniversalClient, prefix string) *LockStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &LockStore{client: client, prefix: hashTagged(prefix)}
}

// hashTagged returns prefix unchanged if it already holds a non-empty {tag}.
func hashTagged(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 {
		if end := strings.IndexByte(prefix[open+1:], '}'); end > 0 {
			return prefix
		}
	}
	return "{" + strings.TrimSuffix(prefix, ":") + "}:"
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func (s *LockStore) lockKey(id string) string {
	return s.prefix + "lock:" + id
}

func (s *LockStore) expiryKey() string {
	return s.prefix + "expiry"
}

func (s *LockStore) InsertIfAbsent(ctx context.Context, lock *domain.OperationLock) error {
	args := []any{lock.ID, lock.ExpiresAt.UnixMilli()}
	args = append(args, encodeLock(lock)...)

	created, err := insertScript.Run(ctx, s.client, []string{s.lockKey(lock.ID), s.expiryKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis: insert lock: %w", err)
	}
	if created == 0 {
		return domain.ErrLockExists
	}
	return nil
}

func (s *LockStore) FindByID(ctx context.Context, id string) (*domain.OperationLock, error) {
	fields, err := s.client.HGetAll(ctx, s.lockKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: find lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrLockNotFound
	}
	lock, err := decodeLock(fields)
	if err != nil {
		return nil, fmt.Errorf("redis: find lock: %w", err)
	}
	return lock, nil
}

func (s *LockStore) UpdateByID(ctx context.Context, id string, patch domain.LockPatch) error {
	updated, err := updateScript.Run(ctx, s.client, []string{s.lockKey(id)},
		string(patch.Status), string(patch.Result), patch.ErrorMessage, patch.CompletedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: update lock: %w", err)
	}
	if updated == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

func (s *LockStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()

	var total int64
	for {
		ids, err := s.client.ZRangeArgs(ctx, goredis.ZRangeArgs{
			Key:     s.expiryKey(),
			Start:   "-inf",
			Stop:    "(" + strconv.FormatInt(cutoff, 10),
			ByScore: true,
			Count:   expiredBatch,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("redis: list expired locks: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}

		keys, args := s.expiredBatchArgs(cutoff, ids)
		n, err := deleteExpiredScript.Run(ctx, s.client, keys, args...).Int64()
		if err != nil {
			return total, fmt.Errorf("redis: delete expired locks: %w", err)
		}
		total += n
		if len(ids) < expiredBatch {
			return total, nil
		}
	}
}

// expiredBatchArgs declares every key the delete script touches so it stays
// valid on Redis Cluster.
func (s *LockStore) expiredBatchArgs(cutoff int64, ids []string) ([]string, []any) {
	keys := make([]string, 0, len(ids)+1)
	args := make([]any, 0, len(ids)+1)
	keys = append(keys, s.expiryKey())
	args = append(args, cutoff)
	for _, id := range ids {
		keys = append(keys, s.lockKey(id))
		args = append(args, id)
	}
	return keys, args
}

func (s *LockStore) DeleteByID(ctx context.Context, id string) error {
	n, err := deleteScript.Run(ctx, s.client, []string{s.lockKey(id), s.expiryKey()}, id).Int()
	if err != nil {
		return fmt.Errorf("redis: delete lock: %w", err)
	}
	if n == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

// Ping checks connectivity to the Redis server.
func (s *LockStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *LockStore) Close() error {
	return s.client.Close()
}

// encodeLock flattens a lock into HSET field/value pairs. Empty optional
// fields are omitted.
func encodeLock(l *domain.OperationLock) []any {
	fields := []any{
		"id", l.ID,
		"operation_type", l.OperationType,
		"status", string(l.Status),
		"created_at", l.CreatedAt.UnixMilli(),
		"expires_at", l.ExpiresAt.UnixMilli(),
	}
	if len(l.RequestParams) > 0 {
		fields = append(fields, "request_params", string(l.RequestParams))
	}
	if l.UserID != "" {
		fields = append(fields, "user_id", l.UserID)
	}
	if len(l.Result) > 0 {
		fields = append(fields, "result", string(l.Result))
	}
	if l.ErrorMessage != "" {
		fields = append(fields, "error_message", l.ErrorMessage)
	}
	if l.CompletedAt != nil {
		fields = append(fields, "completed_at", l.CompletedAt.UnixMilli())
	}
	return fields
}

func decodeLock(fields map[string]string) (*domain.OperationLock, error) {
	lock := &domain.OperationLock{
		ID:            fields["id"],
		OperationType: fields["operation_type"],
		Status:        domain.LockStatus(fields["status"]),
		UserID:        fields["user_id"],
		ErrorMessage:  fields["error_message"],
	}
	if !lock.Status.IsValid() {
		return nil, fmt.Errorf("lock %s has invalid status %q", lock.ID, lock.Status)
	}
	if v, ok := fields["request_params"]; ok {
		lock.RequestParams = json.RawMessage(v)
	}
	if v, ok := fields["result"]; ok {
		lock.Result = json.RawMessage(v)
	}

	var err error
	if lock.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if lock.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	if v, ok := fields["completed_at"]; ok {
		at, err := parseMillis(v)
		if err != nil {
			return nil, fmt.Errorf("completed_at: %w", err)
		}
		lock.CompletedAt = &at
	}
	return lock, nil
}

var errMissingTimestamp = errors.New("missing timestamp")

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errMissingTimestamp
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

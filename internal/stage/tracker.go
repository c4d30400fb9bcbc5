package stage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tracker records intermediate progress separately from the result write so
// clients can poll without loading stage output.
type Tracker interface {
	// Reset starts tracking documentID at progress 0 with status.
	Reset(ctx context.Context, documentID uuid.UUID, status Status) error
	// Advance raises progress monotonically while processing.
	Advance(ctx context.Context, documentID uuid.UUID, pct int) error
	// Settle records a terminal status.
	Settle(ctx context.Context, documentID uuid.UUID, status Status) error
	// Read returns the latest snapshot or ErrNotFound.
	Read(ctx context.Context, documentID uuid.UUID) (*Snapshot, error)
}

type progressStore interface {
	Advance(ctx context.Context, documentID uuid.UUID, pct int) error
	Snapshot(ctx context.Context, documentID uuid.UUID) (*Snapshot, error)
}

// StoreTracker tracks progress in the result row itself. Reset and Settle are
// no-ops because Store writes already set status and progress.
type StoreTracker struct {
	store progressStore
}

// NewStoreTracker creates a tracker backed by the stage Store.
func NewStoreTracker(store progressStore) *StoreTracker {
	return &StoreTracker{store: store}
}

func (t *StoreTracker) Reset(context.Context, uuid.UUID, Status) error { return nil }

func (t *StoreTracker) Advance(ctx context.Context, documentID uuid.UUID, pct int) error {
	return t.store.Advance(ctx, documentID, pct)
}

func (t *StoreTracker) Settle(context.Context, uuid.UUID, Status) error { return nil }

func (t *StoreTracker) Read(ctx context.Context, documentID uuid.UUID) (*Snapshot, error) {
	return t.store.Snapshot(ctx, documentID)
}

// advanceScript raises the progress field only while processing and only upward.
var advanceScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'processing' then
	return 0
end
local current = tonumber(redis.call('HGET', KEYS[1], 'progress') or '-1')
local target = tonumber(ARGV[1])
if target <= current then
	return 0
end
redis.call('HSET', KEYS[1], 'progress', ARGV[1], 'updated_at', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisTracker keeps progress in a Redis hash per document.
type RedisTracker struct {
	client redis.Cmdable
	key    func(documentID uuid.UUID) string
	ttl    time.Duration
}

// NewRedisTracker creates a tracker whose hash keys are produced by key.
// Hashes expire after ttl of inactivity.
func NewRedisTracker(client redis.Cmdable, key func(uuid.UUID) string, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{client: client, key: key, ttl: ttl}
}

func (t *RedisTracker) Reset(ctx context.Context, documentID uuid.UUID, status Status) error {
	return t.write(ctx, documentID, map[string]any{
		"status":   string(status),
		"progress": 0,
	})
}

func (t *RedisTracker) Advance(ctx context.Context, documentID uuid.UUID, pct int) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ttl := strconv.Itoa(int(t.ttl.Seconds()))

	if err := advanceScript.Run(ctx, t.client, []string{t.key(documentID)}, pct, now, ttl).Err(); err != nil {
		return fmt.Errorf("advance progress: %w", err)
	}
	return nil
}

func (t *RedisTracker) Settle(ctx context.Context, documentID uuid.UUID, status Status) error {
	fields := map[string]any{"status": string(status)}
	if status == StatusCompleted {
		fields["progress"] = 100
	}
	return t.write(ctx, documentID, fields)
}

func (t *RedisTracker) Read(ctx context.Context, documentID uuid.UUID) (*Snapshot, error) {
	values, err := t.client.HGetAll(ctx, t.key(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	progress, _ := strconv.Atoi(values["progress"])
	millis, _ := strconv.ParseInt(values["updated_at"], 10, 64)

	return &Snapshot{
		DocumentID: documentID,
		Status:     Status(values["status"]),
		Progress:   progress,
		UpdatedAt:  time.UnixMilli(millis),
	}, nil
}

func (t *RedisTracker) write(ctx context.Context, documentID uuid.UUID, fields map[string]any) error {
	key := t.key(documentID)
	fields["updated_at"] = time.Now().UnixMilli()

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// readSnapshot reads from tracker, falling back to the store when the tracker
// has no entry for documentID.
func readSnapshot(ctx context.Context, tracker Tracker, store progressStore, documentID uuid.UUID) (*Snapshot, error) {
	snap, err := tracker.Read(ctx, documentID)
	if errors.Is(err, ErrNotFound) {
		return store.Snapshot(ctx, documentID)
	}
	return snap, err
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis as a backend.
// It lets several scenario instances and the HTTP API share snapshots, with
// an optional TTL after which a snapshot expires.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// newRedisClient connects to Redis and verifies the connection with PING.
func newRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: Snapshot expiration duration (0 keeps snapshots until replaced)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client, err := newRedisClient(addr, password, db)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

const snapshotPrefix = "analogflow:scenario:"

func snapshotKey(source string, station int) string {
	return fmt.Sprintf("%s%s:%d", snapshotPrefix, source, station)
}

// Put stores a scenario snapshot in Redis.
// The key format is "analogflow:scenario:{source}:{station}".
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := validSource(s.Source); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, snapshotKey(s.Source, s.Station), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}

	return nil
}

// GetLatest retrieves the latest snapshot for a source and station.
//
// Returns:
//   - snapshot: The scenario snapshot (zero value if not found)
//   - found: true if snapshot exists, false if not found
//   - error: non-nil if an error occurred (excluding "not found")
func (r *RedisStore) GetLatest(ctx context.Context, source string, station int) (Snapshot, bool, error) {
	if err := validSource(source); err != nil {
		return Snapshot{}, false, err
	}

	data, err := r.client.Get(ctx, snapshotKey(source, station)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, true, nil
}

// Sources scans the snapshot keys and returns their distinct sources.
func (r *RedisStore) Sources(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	iter := r.client.Scan(ctx, 0, snapshotPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), snapshotPrefix)
		if i := strings.LastIndexByte(rest, ':'); i > 0 {
			seen[rest[:i]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot keys: %w", err)
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
// Returns an error if the connection is unavailable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisRegistry is an analog.Registry shared through a Redis hash, so that
// several planners of one batch see each other's selections.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

// NewRedisRegistry connects to Redis and returns a registry stored under the
// hash "analogflow:years".
func NewRedisRegistry(addr, password string, db int) (*RedisRegistry, error) {
	client, err := newRedisClient(addr, password, db)
	if err != nil {
		return nil, err
	}
	return &RedisRegistry{client: client, key: "analogflow:years"}, nil
}

// Years implements analog.Registry.
func (r *RedisRegistry) Years(ctx context.Context) (map[int]int, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read used years from redis: %w", err)
	}

	counts := make(map[int]int, len(raw))
	for field, value := range raw {
		year, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid year field %q: %w", field, err)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid count for year %d: %w", year, err)
		}
		counts[year] = n
	}
	return counts, nil
}

// Commit implements analog.Registry. All increments are applied in one
// MULTI/EXEC transaction.
func (r *RedisRegistry) Commit(ctx context.Context, years []int) error {
	if len(years) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, y := range years {
			pipe.HIncrBy(ctx, r.key, strconv.Itoa(y), 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit used years to redis: %w", err)
	}
	return nil
}

// Reset implements analog.Registry.
func (r *RedisRegistry) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to reset used years in redis: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

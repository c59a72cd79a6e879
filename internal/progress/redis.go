package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verte-zerg/balance/internal/model"
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	// Namespace separates slots of different users sharing one Redis.
	Namespace string
}

// compare-and-delete keeps ClearIfMatch atomic on the server side.
var clearIfMatchScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis stores the pending record in a Redis string. It suits kiosk setups where
// several devices share one progress slot per user.
type Redis struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			// Best-effort close on failed ping.
			_ = cerr
		}
		return nil, Unavailable("redis ping", err)
	}
	key := StorageKey
	if cfg.Namespace != "" {
		key = StorageKey + ":" + cfg.Namespace
	}
	return &Redis{client: client, key: key}, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, p model.LocalProgress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return Unavailable("redis save", err)
	}
	return nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context) (model.LocalProgress, bool, error) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.LocalProgress{}, false, nil
	}
	if err != nil {
		return model.LocalProgress{}, false, Unavailable("redis load", err)
	}
	var p model.LocalProgress
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.LocalProgress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return p, true, nil
}

// Clear implements Store.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return Unavailable("redis clear", err)
	}
	return nil
}

// ClearIfMatch implements Store.
func (r *Redis) ClearIfMatch(ctx context.Context, p model.LocalProgress) (bool, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encode progress: %w", err)
	}
	n, err := clearIfMatchScript.Run(ctx, r.client, []string{r.key}, string(payload)).Int64()
	if err != nil {
		return false, Unavailable("redis clear", err)
	}
	return n > 0, nil
}

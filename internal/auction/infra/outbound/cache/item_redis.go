package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	sharedCache "github.com/davicafu/auctionsearch/internal/shared/infra/platform/cache"
)

// RedisCache guarda las proyecciones serializadas en JSON para lecturas rápidas por ID.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func NewRedisCache(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, defaultTTL: defaultTTL}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // cache miss
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// ---------- Lock distribuido para el seed ----------

// unlockScript borra la clave solo si el token sigue siendo el nuestro.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implementa un lock con SET NX PX y token por instancia.
type RedisLocker struct {
	client *redis.Client
	token  string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, token: uuid.NewString()}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.token, ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return unlockScript.Run(ctx, l.client, []string{key}, l.token).Err()
}

// Verificación estática
var (
	_ sharedCache.Cache    = (*RedisCache)(nil)
	_ auctionDomain.Locker = (*RedisLocker)(nil)
)

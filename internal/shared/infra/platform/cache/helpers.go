package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const asyncTimeout = 200 * time.Millisecond

// AsyncCacheSet escribe en caché en background. Es "dispara y olvida": un fallo
// de caché nunca afecta al flujo principal, solo se registra.
func AsyncCacheSet(cache Cache, key string, value interface{}, ttl time.Duration, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if cache == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		// Contexto propio: la escritura debe completarse aunque el mensaje original ya se haya confirmado.
		cacheCtx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		if err := cache.Set(cacheCtx, key, value, ttl); err != nil {
			log.Warn("Cache update failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
	return done
}

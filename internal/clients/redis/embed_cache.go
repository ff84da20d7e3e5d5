package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veridoc/veridoc-backend/internal/pkg/envutil"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

// EmbedCache stores query-text embeddings so a repeated query never hits the
// embedding endpoint twice. Lookups are best-effort: any Redis failure reads
// as a miss.
type EmbedCache interface {
	Get(ctx context.Context, model string, text string) ([]float32, bool)
	Put(ctx context.Context, model string, text string, vec []float32)
	Close() error
}

type embedCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewEmbedCache returns (nil, nil) when REDIS_ADDR is unset; the engine
// degrades to direct embedding.
func NewEmbedCache(log *logger.Logger) (EmbedCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	ttl := time.Duration(envutil.Int("REDIS_EMBED_TTL_SECONDS", 86400)) * time.Second

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &embedCache{
		log: log.With("service", "RedisEmbedCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "veridoc:embed:" + hex.EncodeToString(sum[:])
}

func (c *embedCache) Get(ctx context.Context, model string, text string) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(model, text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *embedCache) Put(ctx context.Context, model string, text string, vec []float32) {
	if c == nil || c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(model, text), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embed cache write failed", "error", err)
	}
}

func (c *embedCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

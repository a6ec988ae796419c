package marketcache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache guarda no Redis os mercados já classificados de um evento.
// A versão do snapshot só vale dentro do processo, então a chave leva também o Instance
// gerado em New: outra instância (ou este processo depois de reiniciar) nunca lê o dado.
type Cache struct {
	R        *redis.Client
	TTL      time.Duration
	Instance string
}

func New(r *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{R: r, TTL: ttl, Instance: uuid.NewString()}
}

func (c *Cache) Key(eventID string, version uint64) string {
	return fmt.Sprintf("live-odds:markets:%s:%s:v%d", c.Instance, eventID, version)
}

func (c *Cache) GetMarkets(ctx context.Context, eventID string, version uint64, dst any) (bool, error) {
	b, err := c.R.Get(ctx, c.Key(eventID, version)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) SetMarkets(ctx context.Context, eventID string, version uint64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, c.Key(eventID, version), b, c.TTL).Err()
}

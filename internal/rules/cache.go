package rules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meritum-hr/meritum/internal/ledger"
)

// TypeSource loads incident type definitions from primary storage.
type TypeSource interface {
	GetIncidentType(ctx context.Context, id string) (ledger.IncidentType, error)
}

// TypeCache caches incident type lookups in Redis. Engine runs resolve the
// same handful of types once per user, so a short TTL removes almost all of
// the repeated reads. A nil client degrades to pass-through.
type TypeCache struct {
	client *redis.Client
	ttl    time.Duration
	source TypeSource
}

func NewTypeCache(client *redis.Client, ttl time.Duration, source TypeSource) *TypeCache {
	return &TypeCache{client: client, ttl: ttl, source: source}
}

// Resolve returns the incident type, from cache when possible. Cache errors
// are ignored; the source of truth always answers.
func (c *TypeCache) Resolve(ctx context.Context, id string) (ledger.IncidentType, error) {
	key := "incident_type:" + id
	if c.client != nil {
		if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var t ledger.IncidentType
			if json.Unmarshal(data, &t) == nil {
				return t, nil
			}
		}
	}

	t, err := c.source.GetIncidentType(ctx, id)
	if err != nil {
		return ledger.IncidentType{}, err
	}
	if c.client != nil {
		if data, err := json.Marshal(t); err == nil {
			c.client.Set(ctx, key, data, c.ttl)
		}
	}
	return t, nil
}

// Package cache provides a fail-soft JSON cache over Redis or process memory.
// Store errors never reach callers: they are logged and reported as
// Unavailable, which readers treat as a miss.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/metrics"
)

// DefaultTTL applies when Set is called with ttl <= 0.
const DefaultTTL = time.Hour

// Outcome is the typed result of a cache operation.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Stored
	Deleted
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case Stored:
		return "stored"
	case Deleted:
		return "deleted"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Cache wraps a Store with JSON encoding, logging and metrics.
type Cache struct {
	store   Store
	metrics *metrics.Registry
	log     zerolog.Logger
}

// New creates a Cache over store. m may be nil.
func New(store Store, m *metrics.Registry) *Cache {
	return &Cache{
		store:   store,
		metrics: m,
		log:     log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the raw bytes stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, Outcome) {
	val, found, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("key", key).Msg("Cache get failed")
		return c.record("get", nil, Unavailable)
	case !found:
		return c.record("get", nil, Miss)
	default:
		return c.record("get", val, Hit)
	}
}

// GetJSON decodes the value under key into v. A value that fails to decode
// is treated as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) Outcome {
	raw, outcome := c.Get(ctx, key)
	if outcome != Hit {
		return outcome
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return Miss
	}
	return Hit
}

// Set stores value under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) Outcome {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache set failed")
		_, o := c.record("set", nil, Unavailable)
		return o
	}
	_, o := c.record("set", nil, Stored)
	return o
}

// SetJSON encodes v and stores it under key for ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) Outcome {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache value not serialisable")
		_, o := c.record("set", nil, Unavailable)
		return o
	}
	return c.Set(ctx, key, raw, ttl)
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) Outcome {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache delete failed")
		_, o := c.record("delete", nil, Unavailable)
		return o
	}
	_, o := c.record("delete", nil, Deleted)
	return o
}

func (c *Cache) record(op string, val []byte, o Outcome) ([]byte, Outcome) {
	c.metrics.RecordCache(op, o.String())
	return val, o
}

// GenerateKey derives a deterministic key "prefix:<md5 hex>" from positional
// args and named kwargs. kwargs are sorted by name, so map order is
// irrelevant. Values are quoted, so separators inside an arg cannot collide.
func GenerateKey(prefix string, args []string, kwargs map[string]string) string {
	names := make([]string, 0, len(kwargs))
	for k := range kwargs {
		names = append(names, k)
	}
	sort.Strings(names)

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	pairs := make([]string, len(names))
	for i, k := range names {
		pairs[i] = strconv.Quote(k) + "=" + strconv.Quote(kwargs[k])
	}

	material := prefix + ":" + strings.Join(quoted, ",") + ":" + strings.Join(pairs, ",")
	sum := md5.Sum([]byte(material))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

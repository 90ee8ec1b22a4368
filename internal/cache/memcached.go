package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Key prefixes per payload kind.
const (
	WeatherPrefix = "weather:"
	CatalogPrefix = "catalog:"
)

// maxRelativeExp is memcached's limit for relative expirations.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache over memcached with JSON values.
type MemcachedCache[T any] struct {
	client *memcache.Client
	prefix string
}

// NewMemcachedClient builds a client for a comma-separated address list
// (e.g. "host1:11211,host2:11211"). Zero timeout and maxIdleConns keep the
// library defaults.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache stores values under prefix on a shared client.
func NewMemcachedCache[T any](client *memcache.Client, prefix string) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client, prefix: prefix}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key maps k to a valid memcached key. Region tags are Hangul and memcached
// keys must be printable ASCII without spaces, so the tag is hashed.
func (c *MemcachedCache[T]) key(k string) string {
	sum := sha1.Sum([]byte(k))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get implements Cache.Get.
func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("memcached get: %w", err)
	}
	var v T
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return zero, false, fmt.Errorf("memcached decode: %w", err)
	}
	return v, true, nil
}

// Set implements Cache.Set. TTLs are rounded up to whole seconds.
func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode: %w", err)
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

func expirationSeconds(ttl time.Duration) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs > maxRelativeExp {
		secs = maxRelativeExp
	}
	return int32(secs)
}

// Ping checks that every server is reachable. Used for health checks.
func (c *MemcachedCache[T]) Ping() error {
	return c.client.Ping()
}

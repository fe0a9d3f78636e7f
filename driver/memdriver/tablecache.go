package memdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rabidsql/rsqlworker/driver"
)

// DefaultTableCacheTTL bounds how long a cached ListTables answer is trusted
// before the next call falls back to the in-memory table map again.
const DefaultTableCacheTTL = 30 * time.Second

// RemoteTableCache fronts a Factory's ListTables with a Redis GET/SETEX pair,
// demonstrating the driver boundary exercising a real external cache without
// connworker or connmanager ever knowing it exists. Only ListTables is
// cached: ListDatabases and Execute results aren't idempotent enough across
// callers to be worth the round trip.
type RemoteTableCache struct {
	factory *Factory
	client  *goredis.Client
	ttl     time.Duration
}

// NewRemoteTableCache wraps factory with a Redis-backed ListTables cache.
// addr is a host:port (e.g. "localhost:6379"); an empty addr is rejected so
// callers don't silently get an unconfigured cache.
func NewRemoteTableCache(factory *Factory, addr string) (*RemoteTableCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("memdriver: RemoteTableCache requires a non-empty redis addr")
	}
	return &RemoteTableCache{
		factory: factory,
		client:  goredis.NewClient(&goredis.Options{Addr: addr}),
		ttl:     DefaultTableCacheTTL,
	}, nil
}

// Close releases the underlying Redis client.
func (c *RemoteTableCache) Close() error { return c.client.Close() }

func (c *RemoteTableCache) Connect(ctx context.Context, host, user, password string) (driver.Session, error) {
	sess, err := c.factory.Connect(ctx, host, user, password)
	if err != nil {
		return nil, err
	}
	return &cachedSession{Session: sess, cache: c}, nil
}

type cachedSession struct {
	driver.Session
	cache *RemoteTableCache
}

// ListTables checks Redis first; a cache miss or a Redis error both fall
// through to the wrapped session so the cache is strictly additive, never a
// point of failure for ListTables itself.
func (s *cachedSession) ListTables(ctx context.Context, database string) (driver.Rows, error) {
	key := "rsqlworker:tables:" + database
	if cached, err := s.cache.client.Get(ctx, key).Result(); err == nil {
		var names []string
		if jsonErr := json.Unmarshal([]byte(cached), &names); jsonErr == nil {
			return staticTableRows(names), nil
		}
	}

	rows, err := s.Session.ListTables(ctx, database)
	if err != nil {
		return nil, err
	}
	names, snapshotErr := snapshotTableNames(rows)
	if snapshotErr != nil {
		return nil, snapshotErr
	}
	if encoded, jsonErr := json.Marshal(names); jsonErr == nil {
		_ = s.cache.client.SetEx(ctx, key, encoded, s.cache.ttl).Err()
	}
	return staticTableRows(names), nil
}

func snapshotTableNames(rows driver.Rows) ([]string, error) {
	defer rows.Close()
	var names []string
	for rows.Next() {
		dest := make([]any, 1)
		if err := rows.Scan(dest); err != nil {
			return nil, err
		}
		if s, ok := dest[0].(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

func staticTableRows(names []string) driver.Rows {
	return newRows([]driver.Column{{Name: "table", Type: driver.ColumnTypeString}}, stringRows(names))
}

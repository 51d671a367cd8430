package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultMetadataTTL is used when a MetadataCache is created with a non-positive TTL.
const DefaultMetadataTTL = 7 * 24 * time.Hour

// MetadataCache is a cache.Store backed by the structure_metadata table, shared by
// every server instance.
type MetadataCache struct {
	db  *DB
	ttl time.Duration
}

// NewMetadataCache creates a Postgres-backed metadata cache
func (db *DB) NewMetadataCache(ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	return &MetadataCache{db: db, ttl: ttl}
}

// TTL returns how long entries stay valid
func (c *MetadataCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a live entry. Expired rows are ignored and left for Purge.
func (c *MetadataCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.pool.QueryRow(ctx,
		`SELECT payload FROM structure_metadata WHERE cache_key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return payload, true, nil
}

// Set stores or replaces an entry
func (c *MetadataCache) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.db.pool.Exec(ctx,
		`INSERT INTO structure_metadata (cache_key, payload, fetched_at, expires_at)
		 VALUES ($1, $2, NOW(), NOW() + $3::interval)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = $2, fetched_at = NOW(), expires_at = NOW() + $3::interval`,
		key, value, intervalLiteral(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to store metadata %s: %w", key, err)
	}
	return nil
}

// Delete removes an entry
func (c *MetadataCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.pool.Exec(ctx, `DELETE FROM structure_metadata WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", key, err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed
func (c *MetadataCache) Purge(ctx context.Context) (int64, error) {
	result, err := c.db.pool.Exec(ctx, `DELETE FROM structure_metadata WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge metadata: %w", err)
	}
	return result.RowsAffected(), nil
}

// isNoRows reports a lookup that matched nothing, however the driver wrapped it.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// intervalLiteral renders a duration as a Postgres interval in whole seconds.
func intervalLiteral(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d seconds", seconds)
}

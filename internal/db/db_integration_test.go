//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bioview/internal/cache"
)

// Compile-time check that the Postgres cache satisfies the loader's store.
var _ cache.Store = (*MetadataCache)(nil)

func setupTestDB(t *testing.T) *DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestMigrate_Idempotent_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.Migrate(context.Background()))
}

func TestMetadataCache_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	c := db.NewMetadataCache(time.Hour)
	key := "pdb:T" + uuid.New().String()[:8]

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []byte(`{"id":"4HHB","title":"first"}`)))
	require.NoError(t, c.Set(ctx, key, []byte(`{"id":"4HHB","title":"second"}`)))

	payload, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"4HHB","title":"second"}`, string(payload))

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataCache_Expiry_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	c := db.NewMetadataCache(time.Second)
	key := "pdb:E" + uuid.New().String()[:8]
	require.NoError(t, c.Set(ctx, key, []byte(`{}`)))

	time.Sleep(1100 * time.Millisecond)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	purged, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}

func TestRemoteJobs_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	suffix := uuid.New().String()
	clustalID := "clustalo-" + suffix
	simpleID := "simple_phylogeny-" + suffix
	orphanID := "clustalo-orphan-" + suffix

	require.NoError(t, db.RecordRemoteJob(ctx, "clustalo", clustalID, ""))
	require.NoError(t, db.RecordRemoteJob(ctx, "clustalo", clustalID, ""), "duplicates are ignored")
	require.NoError(t, db.RecordRemoteJob(ctx, "simple_phylogeny", simpleID, clustalID))
	require.NoError(t, db.RecordRemoteJob(ctx, "clustalo", orphanID, ""))

	children, err := db.ListRemoteJobs(ctx, RemoteJobFilters{ParentID: clustalID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, simpleID, children[0].ExternalID)
	require.NotNil(t, children[0].ParentID)
	assert.Equal(t, clustalID, *children[0].ParentID)

	orphans, err := db.ListOrphanedAlignments(ctx, "clustalo", 1000)
	require.NoError(t, err)
	var ids []string
	for _, j := range orphans {
		ids = append(ids, j.ExternalID)
	}
	assert.Contains(t, ids, orphanID)
	assert.NotContains(t, ids, clustalID)
}

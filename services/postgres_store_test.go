package services

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCacheTableDDL = `
CREATE TABLE IF NOT EXISTS dorm_mail_response_cache (
    id UUID PRIMARY KEY,
    cache_key TEXT NOT NULL UNIQUE,
    status_code INTEGER NOT NULL,
    headers JSONB NOT NULL DEFAULT '{}'::jsonb,
    body BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
)`

func setupPostgresStore(t *testing.T) (*PostgresResponseStore, *fakeClock) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping postgres store tests - TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Skipping postgres store tests - database not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping postgres store tests - database ping failed: %v", err)
	}

	_, err = db.ExecContext(ctx, testCacheTableDDL)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM dorm_mail_response_cache`)
	require.NoError(t, err)

	clock := &fakeClock{current: time.Now().UTC().Truncate(time.Millisecond)}
	store := NewPostgresResponseStore(db)
	store.now = clock.Now

	t.Cleanup(func() {
		db.Exec(`DELETE FROM dorm_mail_response_cache`)
		db.Close()
	})
	return store, clock
}

func TestPostgresResponseStoreUpsertAndGet(t *testing.T) {
	store, _ := setupPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", testResponse("one"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", testResponse("two"), time.Minute))

	cached, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("two"), cached.Body)
	assert.Equal(t, ContentTypeJSON, cached.Headers[HeaderContentType])

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestPostgresResponseStoreExpiry(t *testing.T) {
	store, clock := setupPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", testResponse("body"), time.Minute))
	clock.Advance(2 * time.Minute)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

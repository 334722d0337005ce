//go:build integration

package qdrant

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Integration(t *testing.T) {
	client := setupTestQdrantClient(t)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	t.Run("EnsureCollection is idempotent", func(t *testing.T) {
		require.NoError(t, client.EnsureCollection(ctx))
	})

	t.Run("upsert then search returns hash", func(t *testing.T) {
		require.NoError(t, client.Upsert(ctx, "hash-a", []float32{1, 0, 0}))
		require.NoError(t, client.Upsert(ctx, "hash-a", []float32{1, 0, 0}))
		require.NoError(t, client.Upsert(ctx, "hash-b", []float32{0, 1, 0}))

		hits, err := client.Search(ctx, []float32{1, 0.05, 0}, 5, 0.5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "hash-a", hits[0].ContentHash)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		assert.Error(t, client.Upsert(ctx, "hash-c", []float32{1}))
	})

	t.Run("delete removes points", func(t *testing.T) {
		require.NoError(t, client.Delete(ctx, "hash-a", "hash-b"))

		hits, err := client.Search(ctx, []float32{1, 0, 0}, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

// setupTestQdrantClient skips the test when no Qdrant instance is reachable.
func setupTestQdrantClient(t *testing.T) *Client {
	t.Helper()

	cfg := Config{
		Address:        getQdrantAddress(),
		CollectionName: "test_" + uuid.New().String()[:8],
		VectorSize:     3,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Skipf("Skipping integration test: cannot create Qdrant client: %v", err)
	}

	// The SDK connects lazily; ping the server before running.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.EnsureCollection(ctx); err != nil {
		_ = client.Close()
		t.Skipf("Skipping integration test: Qdrant not reachable at %s: %v", cfg.Address, err)
	}

	return client
}

func getQdrantAddress() string {
	if addr := os.Getenv("QDRANT_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6336"
}

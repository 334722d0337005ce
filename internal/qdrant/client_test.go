package qdrant

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/content-pipeline-service/internal/memory"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid config",
			cfg: Config{
				Address:        "localhost:6334",
				CollectionName: "content_embeddings",
				VectorSize:     1536,
			},
		},
		{
			name:    "empty address",
			cfg:     Config{CollectionName: "content_embeddings", VectorSize: 1536},
			wantErr: "address is required",
		},
		{
			name:    "empty collection",
			cfg:     Config{Address: "localhost:6334", VectorSize: 1536},
			wantErr: "collection name is required",
		},
		{
			name:    "zero vector size",
			cfg:     Config{Address: "localhost:6334", CollectionName: "content_embeddings"},
			wantErr: "vector size must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPointID(t *testing.T) {
	t.Parallel()

	a := PointID("abc")
	assert.Equal(t, a, PointID("abc"))
	assert.NotEqual(t, a, PointID("abd"))
	assert.Equal(t, 5, int(a.Version()))
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty address", func(t *testing.T) {
		_, err := NewClient(Config{CollectionName: "c", VectorSize: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address is required")
	})

	t.Run("rejects malformed address", func(t *testing.T) {
		_, err := NewClient(Config{Address: "localhost", CollectionName: "c", VectorSize: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid address")
	})

	t.Run("connects lazily", func(t *testing.T) {
		c, err := NewClient(Config{Address: "localhost:19999", CollectionName: "c", VectorSize: 3})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), c.vectorSize)
		assert.NoError(t, c.Close())
	})
}

func TestVectorIndexInterface(t *testing.T) {
	t.Parallel()

	var _ memory.VectorIndex = (*Client)(nil)
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "host and port", addr: "localhost:6334", wantHost: "localhost", wantPort: 6334},
		{name: "ip address", addr: "10.0.0.5:6334", wantHost: "10.0.0.5", wantPort: 6334},
		{name: "bracketed ipv6", addr: "[::1]:6334", wantHost: "::1", wantPort: 6334},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "empty port", addr: "localhost:", wantErr: true},
		{name: "missing host", addr: ":6334", wantErr: true},
		{name: "non numeric port", addr: "localhost:abc", wantErr: true},
		{name: "port zero", addr: "localhost:0", wantErr: true},
		{name: "port too large", addr: "localhost:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			host, port, err := parseAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestHitsFromPoints(t *testing.T) {
	t.Parallel()

	points := []*pb.ScoredPoint{
		{
			Payload: map[string]*pb.Value{payloadHashKey: pb.NewValueString("aaa")},
			Score:   0.9,
		},
		{
			Payload: map[string]*pb.Value{"other": pb.NewValueString("x")},
			Score:   0.8,
		},
		{
			Payload: map[string]*pb.Value{payloadHashKey: pb.NewValueString("")},
			Score:   0.7,
		},
		{
			Payload: map[string]*pb.Value{payloadHashKey: pb.NewValueString("bbb")},
			Score:   0.5,
		},
	}

	hits := hitsFromPoints(points)
	require.Len(t, hits, 2)
	assert.Equal(t, "aaa", hits[0].ContentHash)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)
	assert.Equal(t, "bbb", hits[1].ContentHash)
}

func TestClient_Close_NilClient(t *testing.T) {
	t.Parallel()

	c := &Client{client: nil}
	assert.NoError(t, c.Close())
}

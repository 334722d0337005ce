// Package qdrant provides a Qdrant-backed vector index for content
// embeddings. It serves as a candidate source for memory similarity search;
// the memory store remains the system of record.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/helixir/content-pipeline-service/internal/memory"
)

// payloadHashKey is the payload field carrying the content hash of a point.
const payloadHashKey = "content_hash"

// pointNamespace derives stable point IDs from content hashes.
var pointNamespace = uuid.MustParse("6f1f2a0e-3c55-4b8e-9a57-5d1c0e7b9d21")

// Config holds the configuration for connecting to a Qdrant instance.
type Config struct {
	// Address is the host:port of the Qdrant gRPC endpoint (e.g. "localhost:6334").
	Address string
	// APIKey authenticates against managed Qdrant deployments.
	APIKey string
	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
	// CollectionName is the Qdrant collection to use (e.g. "content_embeddings").
	CollectionName string
	// VectorSize is the dimensionality of the embedding vectors.
	VectorSize uint64
}

// Validate checks that all required Config fields are set.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("qdrant config: address is required")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("qdrant config: collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("qdrant config: vector size must be > 0")
	}
	return nil
}

// PointID returns the Qdrant point ID used for a content hash.
func PointID(contentHash string) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(contentHash))
}

// Compile-time check that Client implements memory.VectorIndex.
var _ memory.VectorIndex = (*Client)(nil)

// Client is a Qdrant vector index client.
type Client struct {
	client         *pb.Client
	collectionName string
	vectorSize     uint64
}

// NewClient creates a new Qdrant client for the configured gRPC address. The
// underlying connection is established lazily.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, port, err := parseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid address %q: %w", cfg.Address, err)
	}

	qdrantClient, err := pb.NewClient(&pb.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
		vectorSize:     cfg.VectorSize,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not already exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     c.vectorSize,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", c.collectionName, err)
	}

	return nil
}

// Upsert inserts or replaces the embedding for a content hash.
func (c *Client) Upsert(ctx context.Context, contentHash string, embedding []float32) error {
	if uint64(len(embedding)) != c.vectorSize {
		return fmt.Errorf("qdrant: embedding has %d dimensions, collection expects %d", len(embedding), c.vectorSize)
	}

	wait := true
	_, err := c.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collectionName,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      pb.NewIDUUID(PointID(contentHash).String()),
				Vectors: pb.NewVectors(embedding...),
				Payload: pb.NewValueMap(map[string]any{payloadHashKey: contentHash}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to upsert %s: %w", contentHash, err)
	}

	return nil
}

// Search returns up to limit content hashes whose cosine score is at least
// minScore, ordered by descending score.
func (c *Client) Search(ctx context.Context, embedding []float32, limit int, minScore float64) ([]memory.IndexHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	topK := uint64(limit)
	threshold := float32(minScore)

	scored, err := c.client.Query(ctx, &pb.QueryPoints{
		CollectionName: c.collectionName,
		Query:          pb.NewQueryDense(embedding),
		Limit:          &topK,
		ScoreThreshold: &threshold,
		WithPayload:    pb.NewWithPayloadInclude(payloadHashKey),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	return hitsFromPoints(scored), nil
}

// Delete removes the points for the given content hashes.
func (c *Client) Delete(ctx context.Context, contentHashes ...string) error {
	if len(contentHashes) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, 0, len(contentHashes))
	for _, h := range contentHashes {
		ids = append(ids, pb.NewIDUUID(PointID(h).String()))
	}

	wait := true
	_, err := c.client.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.collectionName,
		Wait:           &wait,
		Points:         pb.NewPointsSelectorIDs(ids),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to delete %d points: %w", len(contentHashes), err)
	}
	return nil
}

// Close releases the gRPC connection to Qdrant.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// hitsFromPoints converts scored points to index hits, skipping points
// written without a content hash payload.
func hitsFromPoints(points []*pb.ScoredPoint) []memory.IndexHit {
	hits := make([]memory.IndexHit, 0, len(points))
	for _, sp := range points {
		v, ok := sp.GetPayload()[payloadHashKey]
		if !ok {
			continue
		}
		hash := v.GetStringValue()
		if hash == "" {
			continue
		}
		hits = append(hits, memory.IndexHit{ContentHash: hash, Score: float64(sp.GetScore())})
	}
	return hits
}

// parseAddress splits an address string of the form "host:port".
func parseAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}
	return host, port, nil
}

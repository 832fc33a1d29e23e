// Package redis implements vecindex.Index on Redis 8+ via FT.SEARCH KNN
// queries over hash documents, for deployments that keep vectors local
// instead of in a managed index.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

const vectorField = "vector"

// Config holds connection parameters for a Redis-backed index.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	IndexName string
}

// Index stores one embedding space as hashes under "<index>:<id>" keys with
// an FT index over the vector field.
type Index struct {
	space     domain.Space
	client    rueidis.Client
	indexName string
	prefix    string
}

var _ vecindex.Index = (*Index)(nil)

// New connects to Redis and ensures the FT index for the space exists.
func New(ctx context.Context, space domain.Space, cfg Config) (*Index, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("%w: redis addrs is required", domain.ErrVectorIndex)
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("%w: redis index name is required", domain.ErrVectorIndex)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", domain.ErrVectorIndex, err)
	}

	idx := &Index{
		space:     space,
		client:    client,
		indexName: cfg.IndexName,
		prefix:    cfg.IndexName + ":",
	}
	if err := idx.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

// Space returns the embedding space this index serves.
func (i *Index) Space() domain.Space { return i.space }

// Close shuts down the client.
func (i *Index) Close() {
	i.client.Close()
}

// Ping checks connectivity.
func (i *Index) Ping(ctx context.Context) error {
	cmd := i.client.B().Ping().Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

func (i *Index) ensureIndex(ctx context.Context) error {
	args := []string{
		i.indexName,
		"ON", "HASH",
		"PREFIX", "1", i.prefix,
		"SCHEMA",
		vectorField, "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(i.space.Dimensions()),
		"DISTANCE_METRIC", "COSINE",
	}
	cmd := i.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("%w: create index: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

// Query runs a KNN similarity search via FT.SEARCH.
func (i *Index) Query(ctx context.Context, vector domain.Vector, topK int) ([]vecindex.Match, error) {
	if err := vector.CheckSpace(i.space); err != nil {
		return nil, err
	}
	topK = vecindex.ClampTopK(topK)

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB]", topK, vectorField)
	args := []string{
		i.indexName, queryStr,
		"RETURN", "1", "__" + vectorField + "_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := i.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := i.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: knn search: %w", domain.ErrVectorIndex, err)
	}
	return i.parseKNNResult(raw)
}

// Upsert writes vectors as hashes keyed by "<index>:<id>".
func (i *Index) Upsert(ctx context.Context, items []vecindex.Item) error {
	for _, item := range items {
		if err := item.Vector.CheckSpace(i.space); err != nil {
			return err
		}
		hset := i.client.B().Hset().Key(i.prefix + item.ID).FieldValue().
			FieldValue(vectorField, vectorToBytes(item.Vector))
		for k, v := range item.Metadata {
			hset = hset.FieldValue(k, v)
		}
		if err := i.client.Do(ctx, hset.Build()).Error(); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", domain.ErrVectorIndex, item.ID, err)
		}
	}
	return nil
}

// GetByIDs reads stored vectors back from their hashes; missing ids are skipped.
func (i *Index) GetByIDs(ctx context.Context, ids []string) ([]vecindex.Item, error) {
	out := make([]vecindex.Item, 0, len(ids))
	for _, id := range ids {
		cmd := i.client.B().Hget().Key(i.prefix + id).Field(vectorField).Build()
		raw, err := i.client.Do(ctx, cmd).ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("%w: get %s: %w", domain.ErrVectorIndex, id, err)
		}
		vec, err := bytesToVector(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrVectorIndex, id, err)
		}
		out = append(out, vecindex.Item{ID: id, Vector: vec})
	}
	return out, nil
}

func (i *Index) parseKNNResult(raw []rueidis.RedisMessage) ([]vecindex.Match, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("%w: parse total: %w", domain.ErrVectorIndex, err)
	}
	if total == 0 {
		return nil, nil
	}

	matches := make([]vecindex.Match, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for pos := 1; pos+1 < len(raw); pos += 2 {
		key, err := raw[pos].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[pos+1].ToArray()
		if err != nil {
			continue
		}
		score, ok := extractScore(fields)
		if !ok {
			continue
		}
		matches = append(matches, vecindex.Match{
			ID:    strings.TrimPrefix(key, i.prefix),
			Score: score,
		})
	}
	return matches, nil
}

func extractScore(fields []rueidis.RedisMessage) (float64, bool) {
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil || name != "__"+vectorField+"_score" {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			return 0, false
		}
		dist, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return distanceToSimilarity(dist), true
	}
	return 0, false
}

// distanceToSimilarity converts cosine distance to similarity, clamped to [0,1].
func distanceToSimilarity(dist float64) float64 {
	return max(0, 1.0-dist)
}

func vectorToBytes(v domain.Vector) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(s string) (domain.Vector, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(s))
	}
	v := make(domain.Vector, len(s)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return v, nil
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

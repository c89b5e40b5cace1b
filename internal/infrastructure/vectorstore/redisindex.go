// Package vectorstore keeps embedded knowledge base chunks in Redis and
// answers nearest neighbour queries over them.
package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const (
	DefaultNamespace = "knowledge-base"
	keyPrefix        = "autocrm:vec"
)

// Match is a chunk returned by Search with its cosine similarity.
type Match struct {
	Chunk knowledge.Chunk
	Score float64
}

// RedisIndex stores one hash per chunk and scans a namespace on search.
// It needs no Redis modules, which suits knowledge bases of a few thousand
// chunks.
type RedisIndex struct {
	client *redis.Client
	logger logger.Interface
}

func NewRedisIndex(client *redis.Client, log logger.Interface) *RedisIndex {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisIndex{client: client, logger: log}
}

func idsKey(ns string) string {
	return fmt.Sprintf("%s:%s:ids", keyPrefix, ns)
}

func chunkKey(ns, id string) string {
	return fmt.Sprintf("%s:%s:chunk:%s", keyPrefix, ns, id)
}

func articleKey(ns, articleID string) string {
	return fmt.Sprintf("%s:%s:article:%s", keyPrefix, ns, articleID)
}

// Upsert stores chunks with their vectors. Chunk ids are content addressed,
// so re-indexing unchanged text overwrites in place.
func (x *RedisIndex) Upsert(ctx context.Context, ns string, chunks []knowledge.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	_, err := x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, c := range chunks {
			pipe.HSet(ctx, chunkKey(ns, c.ID),
				"article_id", c.ArticleID,
				"index", c.Index,
				"text", c.Text,
				"vector", encodeVector(vectors[i]),
			)
			pipe.SAdd(ctx, idsKey(ns), c.ID)
			pipe.SAdd(ctx, articleKey(ns, c.ArticleID), c.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	x.logger.Debugw("chunks indexed", "namespace", ns, "count", len(chunks))
	return nil
}

// DeleteArticle removes every chunk of an article.
func (x *RedisIndex) DeleteArticle(ctx context.Context, ns, articleID string) (int, error) {
	ids, err := x.client.SMembers(ctx, articleKey(ns, articleID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks of article %s: %w", articleID, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, chunkKey(ns, id))
			pipe.SRem(ctx, idsKey(ns), id)
		}
		pipe.Del(ctx, articleKey(ns, articleID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks of article %s: %w", articleID, err)
	}
	return len(ids), nil
}

// Search returns up to k chunks most similar to vector, best first.
func (x *RedisIndex) Search(ctx context.Context, ns string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	ids, err := x.client.SMembers(ctx, idsKey(ns)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := x.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, chunkKey(ns, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	matches := make([]Match, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		stored, err := decodeVector(fields["vector"])
		if err != nil {
			x.logger.Warnw("skipping chunk with corrupt vector", "chunk_id", ids[i], "error", err)
			continue
		}
		score, ok := cosine(vector, stored)
		if !ok {
			continue
		}
		index, _ := strconv.Atoi(fields["index"])
		matches = append(matches, Match{
			Chunk: knowledge.Chunk{
				ID:        ids[i],
				ArticleID: fields["article_id"],
				Index:     index,
				Text:      fields["text"],
			},
			Score: score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of chunks in ns.
func (x *RedisIndex) Count(ctx context.Context, ns string) (int64, error) {
	return x.client.SCard(ctx, idsKey(ns)).Result()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(s string) ([]float32, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("vector length %d is not a multiple of 4", len(s))
	}
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// cosine reports false for vectors of different dimension or zero length.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

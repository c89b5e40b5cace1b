package vectorstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
)

func setupIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisIndex(client, nil), mr
}

func TestRedisIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx, _ := setupIndex(t)

	chunks := []knowledge.Chunk{
		{ID: "c1", ArticleID: "a1", Index: 0, Text: "reset your password"},
		{ID: "c2", ArticleID: "a1", Index: 1, Text: "billing cycles"},
		{ID: "c3", ArticleID: "a2", Index: 0, Text: "printer setup"},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.7, 0.7, 0}}
	require.NoError(t, idx.Upsert(ctx, DefaultNamespace, chunks, vectors))

	matches, err := idx.Search(ctx, DefaultNamespace, []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, chunks[0], matches[0].Chunk)
	assert.Equal(t, "c3", matches[1].Chunk.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	// Namespaces are separate.
	other, err := idx.Search(ctx, "other", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, other)

	none, err := idx.Search(ctx, DefaultNamespace, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisIndex_SkipsMismatchedDimensions(t *testing.T) {
	ctx := context.Background()
	idx, _ := setupIndex(t)

	require.NoError(t, idx.Upsert(ctx, "ns",
		[]knowledge.Chunk{{ID: "c1", ArticleID: "a1", Text: "x"}, {ID: "c2", ArticleID: "a1", Text: "y"}},
		[][]float32{{1, 0}, {1, 0, 0}},
	))

	matches, err := idx.Search(ctx, "ns", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].Chunk.ID)
}

func TestRedisIndex_DeleteArticle(t *testing.T) {
	ctx := context.Background()
	idx, _ := setupIndex(t)

	require.NoError(t, idx.Upsert(ctx, "ns",
		[]knowledge.Chunk{
			{ID: "c1", ArticleID: "a1", Text: "x"},
			{ID: "c2", ArticleID: "a1", Text: "y"},
			{ID: "c3", ArticleID: "a2", Text: "z"},
		},
		[][]float32{{1}, {1}, {1}},
	))

	n, err := idx.DeleteArticle(ctx, "ns", "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, err = idx.DeleteArticle(ctx, "ns", "a1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisIndex_UpsertValidation(t *testing.T) {
	idx, _ := setupIndex(t)
	err := idx.Upsert(context.Background(), "ns", []knowledge.Chunk{{ID: "c1"}}, nil)
	assert.EqualError(t, err, "got 0 vectors for 1 chunks")
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := decodeVector(string(encodeVector(v)))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector("abc")
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{name: "same direction", a: []float32{1, 1}, b: []float32{2, 2}, want: 1, wantOK: true},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0, wantOK: true},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1, wantOK: true},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 0}},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cosine(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

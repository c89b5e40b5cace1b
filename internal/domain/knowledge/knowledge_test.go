package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
		wantErr string
	}{
		{name: "empty text", text: "", size: 4, overlap: 1, want: nil},
		{name: "shorter than chunk", text: "abc", size: 4, overlap: 1, want: []string{"abc"}},
		{name: "overlapping windows", text: "abcdefghij", size: 4, overlap: 1, want: []string{"abcd", "defg", "ghij", "j"}},
		{name: "no overlap", text: "abcdef", size: 3, overlap: 0, want: []string{"abc", "def"}},
		{name: "multibyte runes", text: "héllo wörld", size: 5, overlap: 0, want: []string{"héllo", " wörl", "d"}},
		{name: "zero size", text: "x", size: 0, overlap: 0, wantErr: "positive"},
		{name: "overlap too big", text: "x", size: 3, overlap: 3, wantErr: "smaller"},
		{name: "negative overlap", text: "x", size: 3, overlap: -1, wantErr: "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitText(tt.text, tt.size, tt.overlap)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunkArticle_StableIDs(t *testing.T) {
	text := strings.Repeat("knowledge base ", 100)

	a, err := ChunkArticle("art-1", text, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	b, err := ChunkArticle("art-1", text, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	c, err := ChunkArticle("art-2", text, DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	require.Len(t, a, 3)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0].ID, c[0].ID)
	assert.Equal(t, 2, a[2].Index)
}

func TestNewArticle(t *testing.T) {
	a, err := NewArticle(" Reset password ", "", []string{"Auth", "auth ", ""}, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Reset password", a.Title)
	assert.Equal(t, CategoryGeneral, a.Category)
	assert.Equal(t, []string{"auth"}, a.Tags)
	assert.Equal(t, 1, a.Version)

	_, err = NewArticle("x", "gossip", nil, "u-1")
	assert.ErrorContains(t, err, "invalid article category")
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, Article{FilePath: "guides/setup.MD"}.IsMarkdown())
	assert.True(t, Article{ContentType: "text/markdown; charset=utf-8"}.IsMarkdown())
	assert.False(t, Article{FilePath: "faq.txt", ContentType: "text/plain"}.IsMarkdown())
}

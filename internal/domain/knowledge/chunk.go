package knowledge

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
)

const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

// Chunk is one retrieval unit cut from an article.
type Chunk struct {
	ID        string `json:"id"`
	ArticleID string `json:"article_id"`
	Index     int    `json:"index"`
	Text      string `json:"text"`
}

// SplitText cuts text into windows of size runes, each starting size-overlap
// runes after the previous one. The last window may be shorter.
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if overlap >= size {
		return nil, fmt.Errorf("overlap must be smaller than chunk size")
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative")
	}

	runes := []rune(text)
	step := size - overlap
	var chunks []string
	for pos := 0; pos < len(runes); pos += step {
		end := min(pos+size, len(runes))
		chunks = append(chunks, string(runes[pos:end]))
	}
	return chunks, nil
}

// ChunkArticle splits text and assigns content addressed ids, so
// re-indexing an unchanged article overwrites the same vectors.
func ChunkArticle(articleID, text string, size, overlap int) ([]Chunk, error) {
	parts, err := SplitText(text, size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{
			ID:        chunkID(articleID, i, p),
			ArticleID: articleID,
			Index:     i,
			Text:      p,
		}
	}
	return chunks, nil
}

func chunkID(articleID string, index int, text string) string {
	sum := blake3.Sum256([]byte(articleID + "\x00" + strconv.Itoa(index) + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

// Package knowledge holds knowledge base articles and the chunking used to
// index them for retrieval.
package knowledge

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const Table = "articles"

type Category string

const (
	CategoryGeneral        Category = "general"
	CategoryTroubleshoot   Category = "troubleshooting"
	CategoryBilling        Category = "billing"
	CategoryProductGuide   Category = "product_guide"
	CategoryAccountSupport Category = "account"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryTroubleshoot, CategoryBilling, CategoryProductGuide, CategoryAccountSupport:
		return true
	}
	return false
}

// Article is the metadata row for a stored knowledge base file.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    Category  `json:"category"`
	Tags        []string  `json:"tags"`
	AuthorID    string    `json:"author_id"`
	Version     int       `json:"version"`
	Published   bool      `json:"published"`
	FilePath    string    `json:"file_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewArticle(title string, category Category, tags []string, authorID string) (Article, error) {
	if category == "" {
		category = CategoryGeneral
	}
	a := Article{
		Title:    strings.TrimSpace(title),
		Category: category,
		Tags:     normalizeTags(tags),
		AuthorID: authorID,
		Version:  1,
	}
	if err := a.Validate(); err != nil {
		return Article{}, err
	}
	return a, nil
}

func (a Article) GetID() string {
	return a.ID
}

func (a Article) Validate() error {
	if a.Title == "" {
		return fmt.Errorf("article title is required")
	}
	if a.AuthorID == "" {
		return fmt.Errorf("author_id is required")
	}
	if !a.Category.IsValid() {
		return fmt.Errorf("invalid article category: %s", a.Category)
	}
	if a.Version < 1 {
		return fmt.Errorf("article version must be positive")
	}
	return nil
}

// IsMarkdown reports whether the stored file should be rendered as markdown.
func (a Article) IsMarkdown() bool {
	if strings.HasPrefix(a.ContentType, "text/markdown") {
		return true
	}
	ext := strings.ToLower(path.Ext(a.FilePath))
	return ext == ".md" || ext == ".markdown"
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Package knowledgebase stores knowledge base articles, indexes their text
// for retrieval and answers similarity searches.
package knowledgebase

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/storage"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/vectorstore"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/services/markdown"
)

type Bucket interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Upload(ctx context.Context, p string, r io.Reader) (storage.Object, error)
	Download(ctx context.Context, p string) (io.ReadCloser, storage.Object, error)
	Delete(ctx context.Context, p string) error
	PublicURL(p string) string
}

type Embedder interface {
	Embed(ctx context.Context, inputs ...string) ([][]float32, error)
}

type Index interface {
	Upsert(ctx context.Context, ns string, chunks []knowledge.Chunk, vectors [][]float32) error
	DeleteArticle(ctx context.Context, ns, articleID string) (int, error)
	Search(ctx context.Context, ns string, vector []float32, k int) ([]vectorstore.Match, error)
}

type Options struct {
	Namespace    string
	ChunkSize    int
	ChunkOverlap int
}

type UploadCommand struct {
	Title    string
	Category knowledge.Category
	Tags     []string
	AuthorID string
	FileName string
	Body     io.Reader
}

// Document is an article with its rendered content.
type Document struct {
	Article   knowledge.Article `json:"article"`
	HTML      string            `json:"html,omitempty"`
	Text      string            `json:"text"`
	PublicURL string            `json:"public_url"`
}

type Service struct {
	articles clientstate.Table[knowledge.Article]
	bucket   Bucket
	embedder Embedder
	index    Index
	markdown markdown.MarkdownService
	opts     Options
	logger   logger.Interface
}

func NewService(
	articles clientstate.Table[knowledge.Article],
	bucket Bucket,
	embedder Embedder,
	index Index,
	md markdown.MarkdownService,
	opts Options,
	log logger.Interface,
) *Service {
	if opts.Namespace == "" {
		opts.Namespace = vectorstore.DefaultNamespace
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = knowledge.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(knowledge.DefaultChunkOverlap, opts.ChunkSize-1)
	}
	if md == nil {
		md = markdown.NewMarkdownService()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		articles: articles,
		bucket:   bucket,
		embedder: embedder,
		index:    index,
		markdown: md,
		opts:     opts,
		logger:   log.Named("knowledge"),
	}
}

// Upload stores the file, records the article and indexes its text. The
// stored file is removed again if the article row cannot be written. An
// indexing failure leaves the article in place with no chunks and is
// returned alongside it.
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (knowledge.Article, error) {
	s.logger.Infow("uploading article", "file", cmd.FileName, "author_id", cmd.AuthorID)

	article, err := knowledge.NewArticle(cmd.Title, cmd.Category, cmd.Tags, cmd.AuthorID)
	if err != nil {
		return knowledge.Article{}, apperrors.NewValidationError(err.Error())
	}
	name := path.Base(strings.TrimSpace(cmd.FileName))
	if name == "." || name == "/" || name == "" {
		return knowledge.Article{}, apperrors.NewValidationError("file name is required")
	}

	obj, err := s.bucket.Upload(ctx, name, cmd.Body)
	if err != nil {
		return knowledge.Article{}, err
	}

	article.FilePath = obj.Path
	article.ContentType = obj.ContentType
	article.SizeBytes = obj.Size
	article, err = s.articles.Insert(ctx, article)
	if err != nil {
		if delErr := s.bucket.Delete(ctx, obj.Path); delErr != nil {
			s.logger.Errorw("failed to remove orphaned upload", "path", obj.Path, "error", delErr)
		}
		return knowledge.Article{}, err
	}

	return s.Reindex(ctx, article)
}

// Reindex replaces the article's chunks with freshly embedded ones and
// records the chunk count.
func (s *Service) Reindex(ctx context.Context, article knowledge.Article) (knowledge.Article, error) {
	if s.embedder == nil || s.index == nil {
		return article, nil
	}

	text, err := s.text(ctx, article)
	if err != nil {
		return article, err
	}
	chunks, err := knowledge.ChunkArticle(article.ID, text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return article, err
	}

	if _, err := s.index.DeleteArticle(ctx, s.opts.Namespace, article.ID); err != nil {
		return article, err
	}
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.Embed(ctx, texts...)
		if err != nil {
			return article, fmt.Errorf("failed to embed article %s: %w", article.ID, err)
		}
		if err := s.index.Upsert(ctx, s.opts.Namespace, chunks, vectors); err != nil {
			return article, err
		}
	}

	updated, err := s.articles.Update(ctx, article.ID, map[string]any{"chunk_count": len(chunks)})
	if err != nil {
		return article, err
	}

	s.logger.Infow("article indexed", "article_id", article.ID, "chunks", len(chunks))
	return updated, nil
}

// Document loads an article with its sanitized HTML preview and plain text.
func (s *Service) Document(ctx context.Context, id string) (Document, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	raw, err := s.read(ctx, article.FilePath)
	if err != nil {
		return Document{}, err
	}

	doc := Document{Article: article, PublicURL: s.bucket.PublicURL(article.FilePath)}
	if article.IsMarkdown() {
		if doc.HTML, err = s.markdown.ToHTMLSanitized(raw); err != nil {
			return Document{}, err
		}
		if doc.Text, err = s.markdown.ToPlainText(raw); err != nil {
			return Document{}, err
		}
	} else {
		doc.Text = raw
	}
	return doc, nil
}

// Download streams the stored file of an article.
func (s *Service) Download(ctx context.Context, id string) (io.ReadCloser, storage.Object, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, storage.Object{}, err
	}
	return s.bucket.Download(ctx, article.FilePath)
}

func (s *Service) Files(ctx context.Context) ([]storage.Object, error) {
	return s.bucket.List(ctx, "")
}

func (s *Service) PublicURL(article knowledge.Article) string {
	return s.bucket.PublicURL(article.FilePath)
}

// Delete removes the article's chunks, its file and its row.
func (s *Service) Delete(ctx context.Context, id string) error {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return err
	}

	if s.index != nil {
		if _, err := s.index.DeleteArticle(ctx, s.opts.Namespace, id); err != nil {
			return err
		}
	}
	if article.FilePath != "" {
		if err := s.bucket.Delete(ctx, article.FilePath); err != nil {
			return err
		}
	}
	if err := s.articles.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Infow("article deleted", "article_id", id)
	return nil
}

// SearchKnowledge embeds q and returns the k closest chunks.
func (s *Service) SearchKnowledge(ctx context.Context, q string, k int) ([]knowledge.Chunk, error) {
	if s.embedder == nil || s.index == nil {
		return nil, apperrors.NewUnavailableError("knowledge search is not configured")
	}
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
	}

	matches, err := s.index.Search(ctx, s.opts.Namespace, vectors[0], k)
	if err != nil {
		return nil, err
	}
	chunks := make([]knowledge.Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
	}
	return chunks, nil
}

func (s *Service) text(ctx context.Context, article knowledge.Article) (string, error) {
	raw, err := s.read(ctx, article.FilePath)
	if err != nil {
		return "", err
	}
	if article.IsMarkdown() {
		return s.markdown.ToPlainText(raw)
	}
	return raw, nil
}

func (s *Service) read(ctx context.Context, p string) (string, error) {
	rc, _, err := s.bucket.Download(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	return string(b), nil
}

package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/application/knowledgebase"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/storage"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultSearchK        = 5
)

// KnowledgeService is the part of knowledgebase.Service the handler uses.
type KnowledgeService interface {
	Upload(ctx context.Context, cmd knowledgebase.UploadCommand) (knowledge.Article, error)
	Reindex(ctx context.Context, article knowledge.Article) (knowledge.Article, error)
	Document(ctx context.Context, id string) (knowledgebase.Document, error)
	Download(ctx context.Context, id string) (io.ReadCloser, storage.Object, error)
	Files(ctx context.Context) ([]storage.Object, error)
	PublicURL(article knowledge.Article) string
	Delete(ctx context.Context, id string) error
	SearchKnowledge(ctx context.Context, q string, k int) ([]knowledge.Chunk, error)
}

// KnowledgeHandler serves knowledge base articles and retrieval.
// Customers see published articles only.
type KnowledgeHandler struct {
	articles       clientstate.Table[knowledge.Article]
	service        KnowledgeService
	mode           query.SearchMode
	maxUploadBytes int64
	logger         logger.Interface
}

func NewKnowledgeHandler(
	articles clientstate.Table[knowledge.Article],
	service KnowledgeService,
	mode query.SearchMode,
	maxUploadBytes int64,
	log logger.Interface,
) *KnowledgeHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &KnowledgeHandler{
		articles:       articles,
		service:        service,
		mode:           mode,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

func isStaff(c *gin.Context) bool {
	return user.Role(middleware.UserRole(c)).IsStaff()
}

// ListArticles handles GET /articles
//
// Query: search (title terms), category, published (staff only) and the
// common paging parameters.
func (h *KnowledgeHandler) ListArticles(c *gin.Context) {
	req := common.ParseListRequest(c)

	var scope []query.Option
	if category := c.Query("category"); category != "" {
		if !knowledge.Category(category).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid category"))
			return
		}
		scope = append(scope, query.Where("category", category))
	}
	switch {
	case !isStaff(c):
		scope = append(scope, query.Where("published", true))
	case c.Query("published") != "":
		scope = append(scope, query.Where("published", c.Query("published") == "true"))
	}

	items, err := h.articles.List(c.Request.Context(), req.Query("title", h.mode, scope...))
	if err != nil {
		h.logger.Errorw("failed to list articles", "error", err, "search", req.Search)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// visibleArticle parses :id and checks the caller may read the article.
func (h *KnowledgeHandler) visibleArticle(c *gin.Context) (knowledge.Article, bool) {
	id, err := utils.ParseIDParam(c, "id", "article")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return knowledge.Article{}, false
	}
	article, err := h.articles.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return knowledge.Article{}, false
	}
	if !article.Published && !isStaff(c) {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("article not found"))
		return knowledge.Article{}, false
	}
	return article, true
}

// GetArticle handles GET /articles/:id
//
// Returns the article with its rendered HTML preview and plain text.
func (h *KnowledgeHandler) GetArticle(c *gin.Context) {
	article, ok := h.visibleArticle(c)
	if !ok {
		return
	}

	doc, err := h.service.Document(c.Request.Context(), article.ID)
	if err != nil {
		h.logger.Errorw("failed to load article document", "error", err, "article_id", article.ID)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", doc)
}

// UploadArticle handles POST /articles
//
// Multipart form: file, title, category and tags (comma separated).
func (h *KnowledgeHandler) UploadArticle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("file is required", err.Error()))
		return
	}
	if fh.Size > h.maxUploadBytes {
		utils.ErrorResponseWithError(c, errors.NewValidationError(
			fmt.Sprintf("file exceeds the %d byte limit", h.maxUploadBytes)))
		return
	}
	f, err := fh.Open()
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("could not read uploaded file", err.Error()))
		return
	}
	defer f.Close()

	// Everything in the knowledge base is indexed as text.
	mt, err := mimetype.DetectReader(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewBadRequestError("could not read uploaded file", err.Error()))
		return
	}
	if !isText(mt) {
		h.logger.Warnw("rejected non-text article upload", "detected_mime", mt.String(), "file", fh.Filename)
		utils.ErrorResponseWithError(c, errors.NewValidationError(
			"only text and markdown files can be added to the knowledge base", mt.String()))
		return
	}

	title := c.PostForm("title")
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(fh.Filename, path.Ext(fh.Filename))
	}

	article, err := h.service.Upload(c.Request.Context(), knowledgebase.UploadCommand{
		Title:    title,
		Category: knowledge.Category(c.PostForm("category")),
		Tags:     splitTags(c.PostForm("tags")),
		AuthorID: middleware.UserID(c),
		FileName: fh.Filename,
		Body:     f,
	})
	if err != nil && article.ID == "" {
		h.logger.Errorw("failed to upload article", "error", err, "file", fh.Filename)
		utils.ErrorResponseWithError(c, err)
		return
	}
	if err != nil {
		// Stored but not indexed; a reindex can retry.
		h.logger.Warnw("article stored without index", "error", err, "article_id", article.ID)
		utils.CreatedResponse(c, article, "Article uploaded, indexing failed")
		return
	}

	utils.CreatedResponse(c, article, "Article uploaded successfully")
}

func isText(mt *mimetype.MIME) bool {
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// UpdateArticle handles PATCH /articles/:id
func (h *KnowledgeHandler) UpdateArticle(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "article")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req UpdateArticleRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	patch := req.Patch()
	if len(patch) == 0 {
		utils.ErrorResponseWithError(c, errors.NewValidationError("no fields to update"))
		return
	}

	updated, err := h.articles.Update(c.Request.Context(), id, patch)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Article updated successfully", updated)
}

// ReindexArticle handles POST /articles/:id/reindex
func (h *KnowledgeHandler) ReindexArticle(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "article")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	article, err := h.articles.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	updated, err := h.service.Reindex(c.Request.Context(), article)
	if err != nil {
		h.logger.Errorw("failed to reindex article", "error", err, "article_id", id)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Article reindexed successfully", updated)
}

// DownloadArticle handles GET /articles/:id/download
func (h *KnowledgeHandler) DownloadArticle(c *gin.Context) {
	article, ok := h.visibleArticle(c)
	if !ok {
		return
	}

	rc, obj, err := h.service.Download(c.Request.Context(), article.ID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, path.Base(obj.Path)),
	})
}

// DeleteArticle handles DELETE /articles/:id
func (h *KnowledgeHandler) DeleteArticle(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "article")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to delete article", "error", err, "article_id", id)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.NoContentResponse(c)
}

// ListFiles handles GET /knowledge/files
func (h *KnowledgeHandler) ListFiles(c *gin.Context) {
	objects, err := h.service.Files(c.Request.Context())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	out := make([]FileResponse, 0, len(objects))
	for _, o := range objects {
		out = append(out, toFileResponse(o, h.service.PublicURL(knowledge.Article{FilePath: o.Path})))
	}
	utils.ListSuccessResponse(c, out, len(out), 0, 0)
}

// SearchKnowledge handles POST /knowledge/search
func (h *KnowledgeHandler) SearchKnowledge(c *gin.Context) {
	var req SearchKnowledgeRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	k := req.K
	if k == 0 {
		k = defaultSearchK
	}

	chunks, err := h.service.SearchKnowledge(c.Request.Context(), req.Query, k)
	if err != nil {
		h.logger.Errorw("knowledge search failed", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	if chunks == nil {
		chunks = []knowledge.Chunk{}
	}
	utils.ListSuccessResponse(c, chunks, len(chunks), 0, 0)
}

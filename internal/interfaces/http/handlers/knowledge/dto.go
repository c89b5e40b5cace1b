package knowledge

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/storage"
)

type UpdateArticleRequest struct {
	Title     *string `json:"title" binding:"omitempty,min=1,max=200"`
	Category  *string `json:"category" binding:"omitempty,oneof=general troubleshooting billing product_guide account"`
	Published *bool   `json:"published"`
}

// Patch lists the columns the request sets.
func (r UpdateArticleRequest) Patch() map[string]any {
	patch := make(map[string]any, 3)
	if r.Title != nil {
		patch["title"] = *r.Title
	}
	if r.Category != nil {
		patch["category"] = *r.Category
	}
	if r.Published != nil {
		patch["published"] = *r.Published
	}
	return patch
}

type SearchKnowledgeRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	K     int    `json:"k" binding:"omitempty,min=1,max=20"`
}

type FileResponse struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	SizeHuman   string    `json:"size_human"`
	ContentType string    `json:"content_type"`
	UpdatedAt   time.Time `json:"updated_at"`
	URL         string    `json:"url"`
}

func toFileResponse(o storage.Object, url string) FileResponse {
	return FileResponse{
		Path:        o.Path,
		Size:        o.Size,
		SizeHuman:   humanize.IBytes(uint64(max(o.Size, 0))),
		ContentType: o.ContentType,
		UpdatedAt:   o.UpdatedAt,
		URL:         url,
	}
}

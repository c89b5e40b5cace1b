package mappers

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
)

type ArticleMapper struct{}

func NewArticleMapper() *ArticleMapper {
	return &ArticleMapper{}
}

func (m *ArticleMapper) ToModel(a knowledge.Article) *models.ArticleModel {
	return &models.ArticleModel{
		ID:          a.ID,
		Title:       a.Title,
		Category:    string(a.Category),
		Tags:        datatypes.JSONSlice[string](a.Tags),
		AuthorID:    a.AuthorID,
		Version:     a.Version,
		Published:   a.Published,
		FilePath:    a.FilePath,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		ChunkCount:  a.ChunkCount,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (m *ArticleMapper) ToDomain(model *models.ArticleModel) (knowledge.Article, error) {
	category := knowledge.Category(model.Category)
	if !category.IsValid() {
		return knowledge.Article{}, fmt.Errorf("article %s: invalid category %q", model.ID, model.Category)
	}
	tags := []string(model.Tags)
	if tags == nil {
		tags = []string{}
	}
	return knowledge.Article{
		ID:          model.ID,
		Title:       model.Title,
		Category:    category,
		Tags:        tags,
		AuthorID:    model.AuthorID,
		Version:     model.Version,
		Published:   model.Published,
		FilePath:    model.FilePath,
		ContentType: model.ContentType,
		SizeBytes:   model.SizeBytes,
		ChunkCount:  model.ChunkCount,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}, nil
}

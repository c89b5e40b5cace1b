package models

import (
	"time"

	"gorm.io/datatypes"
)

type ArticleModel struct {
	ID          string                      `gorm:"primaryKey;size:36"`
	Title       string                      `gorm:"size:255;not null"`
	Category    string                      `gorm:"size:30;not null;index"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:json"`
	AuthorID    string                      `gorm:"size:36;not null;index"`
	Version     int                         `gorm:"not null;default:1"`
	Published   bool                        `gorm:"not null;default:false"`
	FilePath    string                      `gorm:"size:512"`
	ContentType string                      `gorm:"size:100"`
	SizeBytes   int64
	ChunkCount  int
	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;not null"`
}

func (ArticleModel) TableName() string {
	return "articles"
}

package models

import "time"

type TemplateModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:100;not null"`
	Content   string    `gorm:"type:text;not null"`
	Category  string    `gorm:"size:20;not null;default:general"`
	UserID    string    `gorm:"size:36;not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null;index"`
}

func (TemplateModel) TableName() string {
	return "templates"
}

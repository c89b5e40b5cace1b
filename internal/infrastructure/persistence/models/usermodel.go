package models

import "time"

type UserModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Email     string    `gorm:"uniqueIndex;size:255;not null"`
	Role      string    `gorm:"size:20;not null;default:customer"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null;index"`
}

func (UserModel) TableName() string {
	return "users"
}

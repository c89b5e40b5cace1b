package models

import "time"

type DirectMessageModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	SenderID    string    `gorm:"size:36;not null;index"`
	RecipientID string    `gorm:"size:36;not null;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index"`
}

func (DirectMessageModel) TableName() string {
	return "direct_messages"
}

type MessageModel struct {
	ID              string    `gorm:"primaryKey;size:36"`
	SenderID        string    `gorm:"size:36;not null;index"`
	DirectMessageID *string   `gorm:"size:36;index"`
	ChannelID       *string   `gorm:"size:36;index"`
	Content         string    `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime;not null;index"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime;not null"`
}

func (MessageModel) TableName() string {
	return "messages"
}

package models

import "time"

type TicketModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Title       string    `gorm:"size:200;not null"`
	Description string    `gorm:"type:text;not null"`
	Status      string    `gorm:"size:20;not null;index"`
	Priority    string    `gorm:"size:20;not null;index"`
	CustomerID  string    `gorm:"size:36;not null;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;not null"`

	// Note: No foreign key constraints or associations.
	// All relationships are managed by application business logic.
}

func (TicketModel) TableName() string {
	return "tickets"
}

type InternalNoteModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	TicketID    string    `gorm:"size:36;not null;index"`
	UserID      string    `gorm:"size:36;not null;index"`
	NoteContent string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index"`
}

func (InternalNoteModel) TableName() string {
	return "internal_notes"
}

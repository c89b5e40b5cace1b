package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLogModel is append only; rows are written in the transaction of the
// change they describe.
type AuditLogModel struct {
	ID string `gorm:"primaryKey;size:36"`
	// Table is stored as table_name; the field cannot share the name of the
	// TableName method.
	Table     string         `gorm:"column:table_name;size:64;not null;index"`
	Operation string         `gorm:"size:10;not null"`
	OldData   datatypes.JSON `gorm:"column:old_data"`
	NewData   datatypes.JSON `gorm:"column:new_data"`
	ChangedAt time.Time      `gorm:"not null;index"`
	ChangedBy string         `gorm:"size:36;index"`
}

func (AuditLogModel) TableName() string {
	return "audit_logs"
}

package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
)

type AuditLogMapper struct{}

func NewAuditLogMapper() *AuditLogMapper {
	return &AuditLogMapper{}
}

func (m *AuditLogMapper) ToModel(a audit.AuditLog) *models.AuditLogModel {
	return &models.AuditLogModel{
		ID:        a.ID,
		Table:     a.TableName,
		Operation: string(a.Operation),
		OldData:   jsonOrNil(a.OldData),
		NewData:   jsonOrNil(a.NewData),
		ChangedAt: a.ChangedAt,
		ChangedBy: a.ChangedBy,
	}
}

func (m *AuditLogMapper) ToDomain(model *models.AuditLogModel) (audit.AuditLog, error) {
	op := audit.Operation(model.Operation)
	if !op.IsValid() {
		return audit.AuditLog{}, fmt.Errorf("audit log %s: invalid operation %q", model.ID, model.Operation)
	}
	return audit.AuditLog{
		ID:        model.ID,
		TableName: model.Table,
		Operation: op,
		OldData:   rawOrNil(model.OldData),
		NewData:   rawOrNil(model.NewData),
		ChangedAt: model.ChangedAt.UTC(),
		ChangedBy: model.ChangedBy,
	}, nil
}

func jsonOrNil(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}

func rawOrNil(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return json.RawMessage(j)
}

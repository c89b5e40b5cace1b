package migration

import (
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
)

// AutoMigrateModels lists the models gorm AutoMigrate manages.
func AutoMigrateModels() []any {
	return repository.AllModels()
}

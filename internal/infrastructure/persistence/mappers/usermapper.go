package mappers

import (
	"fmt"

	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
)

// UserMapper handles the conversion between User domain entities and persistence models.
type UserMapper interface {
	ToModel(u user.User) *models.UserModel
	ToDomain(model *models.UserModel) (user.User, error)
}

type UserMapperImpl struct{}

func NewUserMapper() UserMapper {
	return &UserMapperImpl{}
}

func (m *UserMapperImpl) ToModel(u user.User) *models.UserModel {
	return &models.UserModel{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func (m *UserMapperImpl) ToDomain(model *models.UserModel) (user.User, error) {
	role, err := user.NewRole(model.Role)
	if err != nil {
		return user.User{}, fmt.Errorf("user %s: %w", model.ID, err)
	}
	return user.User{
		ID:        model.ID,
		Email:     model.Email,
		Role:      role,
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

type TemplateMapper struct{}

func NewTemplateMapper() *TemplateMapper {
	return &TemplateMapper{}
}

func (m *TemplateMapper) ToModel(t template.Template) *models.TemplateModel {
	return &models.TemplateModel{
		ID:        t.ID,
		Name:      t.Name,
		Content:   t.Content,
		Category:  string(t.Category),
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
	}
}

func (m *TemplateMapper) ToDomain(model *models.TemplateModel) (template.Template, error) {
	category := template.Category(model.Category)
	if !category.IsValid() {
		return template.Template{}, fmt.Errorf("template %s: invalid category %q", model.ID, model.Category)
	}
	return template.Template{
		ID:        model.ID,
		Name:      model.Name,
		Content:   model.Content,
		Category:  category,
		UserID:    model.UserID,
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

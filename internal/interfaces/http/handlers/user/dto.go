package user

import "strings"

type CreateUserRequest struct {
	Email string `json:"email" binding:"required,email,max=255"`
	Role  string `json:"role" binding:"omitempty,oneof=customer employee admin"`
}

type UpdateUserRequest struct {
	Email *string `json:"email" binding:"omitempty,email,max=255"`
	Role  *string `json:"role" binding:"omitempty,oneof=customer employee admin"`
}

// Patch lists the columns the request sets.
func (r UpdateUserRequest) Patch() map[string]any {
	patch := make(map[string]any, 2)
	if r.Email != nil {
		patch["email"] = strings.ToLower(strings.TrimSpace(*r.Email))
	}
	if r.Role != nil {
		patch["role"] = *r.Role
	}
	return patch
}

// Package user holds CRM users: customers, support employees and admins.
package user

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const Table = "users"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleEmployee || r == RoleAdmin
}

// IsStaff reports whether the role works tickets on the support side.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

func NewRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid user role: %s", s)
	}
	return r, nil
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUser(email string, role Role) (User, error) {
	if role == "" {
		role = RoleCustomer
	}
	u := User{Email: strings.ToLower(strings.TrimSpace(email)), Role: role}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u User) GetID() string {
	return u.ID
}

func (u User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("invalid email: %s", u.Email)
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid user role: %s", u.Role)
	}
	return nil
}

package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Profile represents an application user stored in the profiles table.
// The authentication credential (password hash) lives on the same row but is
// never serialized.
type Profile struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          UserRole   `db:"role" json:"role"`
	StudentNumber *string    `db:"student_number" json:"student_number,omitempty"`
	AvatarURL     *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Bio           *string    `db:"bio" json:"bio,omitempty"`
	Department    *string    `db:"department" json:"department,omitempty"`
	Active        bool       `db:"active" json:"active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the first and last name.
func (p *Profile) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ProfileFilter captures filtering criteria for listing profiles.
type ProfileFilter struct {
	Role       *UserRole
	Active     *bool
	Department string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

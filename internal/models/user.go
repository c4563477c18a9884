package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser    UserRole = "USER"
	RoleManager UserRole = "MANAGER"
	RoleAdmin   UserRole = "ADMIN"
)

// Permission is a fine-grained capability embedded in access tokens.
type Permission string

const (
	PermTaskRead   Permission = "task:read"
	PermTaskWrite  Permission = "task:write"
	PermTaskDelete Permission = "task:delete"
	PermTaskExport Permission = "task:export"
	PermUserRead   Permission = "user:read"
	PermUserManage Permission = "user:manage"
)

var rolePermissions = map[UserRole][]Permission{
	RoleUser:    {PermTaskRead, PermTaskWrite, PermTaskDelete},
	RoleManager: {PermTaskRead, PermTaskWrite, PermTaskDelete, PermTaskExport, PermUserRead},
	RoleAdmin:   {PermTaskRead, PermTaskWrite, PermTaskDelete, PermTaskExport, PermUserRead, PermUserManage},
}

// Valid reports whether r belongs to the closed role set.
func (r UserRole) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permissions returns the permission flags granted by the role.
func (r UserRole) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// User represents an application user stored in the users table.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Firstname    string    `db:"firstname" json:"firstname"`
	Lastname     string    `db:"lastname" json:"lastname"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.Lastname == "" {
		return u.Firstname
	}
	return u.Firstname + " " + u.Lastname
}

// RoleNames returns the role claim list for access tokens.
func (u *User) RoleNames() []string {
	return []string{string(u.Role)}
}

// PermissionNames returns the permission claim list for access tokens.
func (u *User) PermissionNames() []string {
	perms := u.Role.Permissions()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

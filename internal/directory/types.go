package directory

import "time"

// User is an account record. Username and email are unique across all rows,
// deleted ones included: soft deletion never frees an identifier.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Age              *int       `json:"age,omitempty"`
	Name             string     `json:"name,omitempty"`
	Lastname         string     `json:"lastname,omitempty"`
	RoleID           string     `json:"role_id"`
	RoleName         string     `json:"role"`
	CreationDate     time.Time  `json:"creation_date"`
	ModificationDate time.Time  `json:"modification_date"`
	Deleted          bool       `json:"deleted"`
	DeletedDate      *time.Time `json:"deleted_date,omitempty"`
}

// Role is a named bundle of capabilities assignable to users. Roles are
// seeded by migrations and immutable at runtime.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission is a named atomic capability, e.g. "edit_own_user".
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RolePermission is the many-to-many edge granting a permission to a role.
type RolePermission struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

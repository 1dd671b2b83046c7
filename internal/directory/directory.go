package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("directory: not found")
	ErrDuplicateUsername = errors.New("directory: username already in use")
	ErrDuplicateEmail    = errors.New("directory: email already in use")
)

// Directory is the read-only projection over user, role and permission
// records that authorization decisions consume. All lookups are
// case-sensitive exact matches on the unique key.
type Directory interface {
	// FindUserByUsername resolves an active (non-deleted) user.
	// Returns ErrNotFound for unknown or soft-deleted usernames.
	FindUserByUsername(ctx context.Context, username string) (*User, error)

	// FindUserByEmail resolves an active user by email.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// LookupUser resolves a user regardless of deletion state. Soft-deleted
	// rows stay reachable here for audit reads.
	LookupUser(ctx context.Context, username string) (*User, error)

	FindRoleByName(ctx context.Context, name string) (*Role, error)
	FindPermissionByName(ctx context.Context, name string) (*Permission, error)

	// RoleHasPermission reports whether the role_permissions edge exists.
	RoleHasPermission(ctx context.Context, roleID, permissionID string) (bool, error)

	// UsernameInUse reports whether any row, deleted or not, holds the
	// username. Deleted identifiers are never freed for reuse.
	UsernameInUse(ctx context.Context, username string) (bool, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
}

// Mutator is the write side consumed by the account lifecycle controller.
// Implementations must enforce username/email uniqueness at commit time and
// report violations as ErrDuplicateUsername/ErrDuplicateEmail; the
// controller treats those as authoritative under concurrent writers.
type Mutator interface {
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error

	// SoftDeleteUser marks the row deleted without removing it.
	SoftDeleteUser(ctx context.Context, username string, when time.Time) error
}

// Store combines the read and write contracts backed by one datastore.
type Store interface {
	Directory
	Mutator
}

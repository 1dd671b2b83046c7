package rbac

import "fmt"

// Kind enumerates the capability families the lifecycle controller gates
// on. Role-scoped kinds are paired with a target role name and formatted to
// the canonical permission string only at the directory boundary, so a typo
// in a hand-written name cannot silently bypass authorization.
type Kind int

const (
	// Role-independent capabilities.
	KindCreateUser Kind = iota
	KindEditUser
	KindEditOwnUser
	KindDeleteUser
	KindDeleteOwnUser

	// Capabilities scoped to a target role.
	KindCreateRoleUser
	KindEditRoleUser
	KindDeleteRoleUser
	KindGrantRole
)

// Capability is one authorization unit: a kind plus, for scoped kinds, the
// target role it applies to.
type Capability struct {
	kind Kind
	role string
}

// CreateUser gates entry into the create operation.
func CreateUser() Capability { return Capability{kind: KindCreateUser} }

// EditUser gates entry into the edit operation.
func EditUser() Capability { return Capability{kind: KindEditUser} }

// EditOwnUser allows editing the actor's own account.
func EditOwnUser() Capability { return Capability{kind: KindEditOwnUser} }

// DeleteUser gates entry into the delete operation.
func DeleteUser() Capability { return Capability{kind: KindDeleteUser} }

// DeleteOwnUser allows deleting the actor's own account.
func DeleteOwnUser() Capability { return Capability{kind: KindDeleteOwnUser} }

// CreateRoleUser allows creating accounts holding the target role.
func CreateRoleUser(role string) Capability {
	return Capability{kind: KindCreateRoleUser, role: role}
}

// EditRoleUser allows editing accounts that currently hold the target role.
func EditRoleUser(role string) Capability {
	return Capability{kind: KindEditRoleUser, role: role}
}

// DeleteRoleUser allows deleting accounts holding the target role.
func DeleteRoleUser(role string) Capability {
	return Capability{kind: KindDeleteRoleUser, role: role}
}

// GrantRole allows assigning the target role to another account.
func GrantRole(role string) Capability {
	return Capability{kind: KindGrantRole, role: role}
}

// PermissionName renders the canonical permission string stored in the
// permissions relation. Adding a new role needs no code change: granting
// the matching strings to a role is enough for scoped kinds to resolve.
func (c Capability) PermissionName() string {
	switch c.kind {
	case KindCreateUser:
		return "create_user"
	case KindEditUser:
		return "edit_user"
	case KindEditOwnUser:
		return "edit_own_user"
	case KindDeleteUser:
		return "delete_user"
	case KindDeleteOwnUser:
		return "delete_own_user"
	case KindCreateRoleUser:
		return fmt.Sprintf("create_%s_user", c.role)
	case KindEditRoleUser:
		return fmt.Sprintf("edit_%s_user", c.role)
	case KindDeleteRoleUser:
		return fmt.Sprintf("delete_%s_user", c.role)
	case KindGrantRole:
		return fmt.Sprintf("grant_%s_role", c.role)
	default:
		return ""
	}
}

func (c Capability) String() string { return c.PermissionName() }

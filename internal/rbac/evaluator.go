package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wufwuf.org/internal/directory"
)

// Evaluator decides whether a role may exercise a set of capabilities. It
// holds no state beyond the directory handle and is safe for concurrent
// use.
type Evaluator struct {
	dir directory.Directory
}

// NewEvaluator constructs an Evaluator over the given directory.
func NewEvaluator(dir directory.Directory) (*Evaluator, error) {
	if dir == nil {
		return nil, errors.New("rbac: directory is required")
	}
	return &Evaluator{dir: dir}, nil
}

// Authorize reports whether roleName holds every required capability. It is
// an AND over all capabilities, never an OR: the first missing role,
// unknown permission name or absent grant short-circuits to false. Unknown
// permission names count as "not granted", not as an error; only directory
// failures surface as errors.
func (e *Evaluator) Authorize(ctx context.Context, roleName string, caps ...Capability) (bool, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" || len(caps) == 0 {
		return false, nil
	}

	role, err := e.dir.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve role %q: %w", roleName, err)
	}

	for _, cap := range caps {
		perm, err := e.dir.FindPermissionByName(ctx, cap.PermissionName())
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("resolve permission %q: %w", cap.PermissionName(), err)
		}
		granted, err := e.dir.RoleHasPermission(ctx, role.ID, perm.ID)
		if err != nil {
			return false, fmt.Errorf("check grant %q for role %q: %w", cap.PermissionName(), roleName, err)
		}
		if !granted {
			return false, nil
		}
	}
	return true, nil
}

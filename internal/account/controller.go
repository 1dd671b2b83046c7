package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wufwuf.org/internal/auth"
	"wufwuf.org/internal/directory"
	"wufwuf.org/internal/ids"
	"wufwuf.org/internal/rbac"
)

// Controller orchestrates account create/edit/delete, composing directory
// lookups, RBAC checks and password hashing. Each operation runs its checks
// in order — authenticate, authorize, validate, uniqueness — and mutates
// only after every check passed. The controller keeps no mutable state and
// is safe for concurrent use.
type Controller struct {
	store  directory.Store
	rbac   *rbac.Evaluator
	tokens *auth.TokenService
	now    func() time.Time
}

// Option configures the Controller.
type Option func(*Controller)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewController constructs a Controller.
func NewController(store directory.Store, tokens *auth.TokenService, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("account: store is required")
	}
	if tokens == nil {
		return nil, errors.New("account: token service is required")
	}
	evaluator, err := rbac.NewEvaluator(store)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		store:  store,
		rbac:   evaluator,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateUserInput carries the fields of a create request.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Age      *int
	Name     string
	Lastname string
	Role     string
}

// EditUserInput carries the patch of an edit request. An empty Password
// keeps the stored hash unchanged.
type EditUserInput struct {
	Email    string
	Password string
	Age      *int
	Name     string
	Lastname string
	Role     string
}

// Authenticate verifies username/password against the directory. Unknown
// username, soft-deleted account and wrong password are indistinguishable:
// all yield ErrUnauthenticated.
func (c *Controller) Authenticate(ctx context.Context, username, password string) (*directory.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrUnauthenticated
	}
	user, err := c.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storageErr(err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Login authenticates and issues a session token carrying the username
// claim, returning the allow-list projection of the account.
func (c *Controller) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := c.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := c.tokens.IssueSession(user.Username)
	if err != nil {
		return Session{}, storageErr(err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: PublicView(user)}, nil
}

// ResolveActor validates a session token and resolves it to an existing,
// non-deleted user. Any failure yields ErrUnauthenticated.
func (c *Controller) ResolveActor(ctx context.Context, token string) (*directory.User, error) {
	claims, err := c.tokens.Validate(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	username, ok := claims.Username()
	if !ok {
		return nil, ErrUnauthenticated
	}
	user, err := c.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storageErr(err)
	}
	return user, nil
}

// Create provisions a new account. Check order: authentication, the
// create_user gate, target role resolution, the role-scoped create gate,
// input validation, then uniqueness — cheapest and most security-sensitive
// checks first, I/O-heavy uniqueness last.
func (c *Controller) Create(ctx context.Context, actor *directory.User, input CreateUserInput) (*directory.User, error) {
	if err := c.requireActor(actor); err != nil {
		return nil, err
	}
	if err := c.require(ctx, actor.RoleName, rbac.CreateUser()); err != nil {
		return nil, err
	}

	role, err := c.store.FindRoleByName(ctx, strings.TrimSpace(input.Role))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidRole
		}
		return nil, storageErr(err)
	}
	if err := c.require(ctx, actor.RoleName, rbac.CreateRoleUser(role.Name)); err != nil {
		return nil, err
	}

	if err := validateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := validateAge(input.Age); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if taken, err := c.store.UsernameInUse(ctx, username); err != nil {
		return nil, storageErr(err)
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := c.store.EmailInUse(ctx, email); err != nil {
		return nil, storageErr(err)
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	now := c.now().UTC()
	user := &directory.User{
		ID:               ids.New(),
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Age:              input.Age,
		Name:             strings.TrimSpace(input.Name),
		Lastname:         strings.TrimSpace(input.Lastname),
		RoleID:           role.ID,
		RoleName:         role.Name,
		CreationDate:     now,
		ModificationDate: now,
	}
	if err := c.store.CreateUser(ctx, user); err != nil {
		// The store's uniqueness constraint is authoritative under
		// concurrent creates; the pre-checks above only gave fast feedback.
		return nil, mapDuplicate(err)
	}
	return user, nil
}

// Edit applies a patch to the target account. Self-edits need
// edit_own_user and may never change the account's own role; edits of
// other accounts need edit_{current_role}_user, plus grant_{new_role}_role
// when the patch moves the target to a different role.
func (c *Controller) Edit(ctx context.Context, actor *directory.User, targetUsername string, patch EditUserInput) (*directory.User, error) {
	if err := c.requireActor(actor); err != nil {
		return nil, err
	}
	// The generic gate covers cross-account edits; a self-edit is gated by
	// edit_own_user alone further down.
	canEditOthers, err := c.rbac.Authorize(ctx, actor.RoleName, rbac.EditUser())
	if err != nil {
		return nil, storageErr(err)
	}

	target, err := c.store.FindUserByUsername(ctx, strings.TrimSpace(targetUsername))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// An actor without the generic gate learns nothing about which
			// usernames exist.
			if !canEditOthers && strings.TrimSpace(targetUsername) != actor.Username {
				return nil, ErrForbidden
			}
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}

	newRole, err := c.store.FindRoleByName(ctx, strings.TrimSpace(patch.Role))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrInvalidRole
		}
		return nil, storageErr(err)
	}
	roleChanged := newRole.ID != target.RoleID

	if actor.Username == target.Username {
		if err := c.require(ctx, actor.RoleName, rbac.EditOwnUser()); err != nil {
			return nil, err
		}
		// A user may never self-promote or self-demote.
		if roleChanged {
			return nil, ErrForbidden
		}
	} else {
		if !canEditOthers {
			return nil, ErrForbidden
		}
		if err := c.require(ctx, actor.RoleName, rbac.EditRoleUser(target.RoleName)); err != nil {
			return nil, err
		}
		if roleChanged {
			if err := c.require(ctx, actor.RoleName, rbac.GrantRole(newRole.Name)); err != nil {
				return nil, err
			}
		}
	}

	email := strings.TrimSpace(patch.Email)
	if email != target.Email {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if taken, err := c.store.EmailInUse(ctx, email); err != nil {
			return nil, storageErr(err)
		} else if taken {
			return nil, ErrEmailTaken
		}
		target.Email = email
	}

	if err := validateAge(patch.Age); err != nil {
		return nil, err
	}

	if patch.Password != "" {
		hash, err := auth.HashPassword(patch.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
		}
		target.PasswordHash = hash
	}

	target.Age = patch.Age
	target.Name = strings.TrimSpace(patch.Name)
	target.Lastname = strings.TrimSpace(patch.Lastname)
	target.RoleID = newRole.ID
	target.RoleName = newRole.Name
	target.ModificationDate = c.now().UTC()

	if err := c.store.UpdateUser(ctx, target); err != nil {
		return nil, mapDuplicate(err)
	}
	return target, nil
}

// Delete soft-deletes the target account. The row is never removed:
// deleted users stay retrievable for audit and their username/email are
// never freed for reuse.
func (c *Controller) Delete(ctx context.Context, actor *directory.User, targetUsername string) error {
	if err := c.requireActor(actor); err != nil {
		return err
	}
	canDeleteOthers, err := c.rbac.Authorize(ctx, actor.RoleName, rbac.DeleteUser())
	if err != nil {
		return storageErr(err)
	}

	target, err := c.store.FindUserByUsername(ctx, strings.TrimSpace(targetUsername))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			if !canDeleteOthers && strings.TrimSpace(targetUsername) != actor.Username {
				return ErrForbidden
			}
			return ErrNotFound
		}
		return storageErr(err)
	}

	if actor.Username == target.Username {
		// delete_own_user alone authorizes removing one's own account.
		if err := c.require(ctx, actor.RoleName, rbac.DeleteOwnUser()); err != nil {
			return err
		}
	} else {
		if !canDeleteOthers {
			return ErrForbidden
		}
		if err := c.require(ctx, actor.RoleName, rbac.DeleteRoleUser(target.RoleName)); err != nil {
			return err
		}
	}

	if err := c.store.SoftDeleteUser(ctx, target.Username, c.now().UTC()); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrNotFound
		}
		return storageErr(err)
	}
	return nil
}

// View returns the allow-list projection of a user, deleted rows included,
// for audit-style reads.
func (c *Controller) View(ctx context.Context, actor *directory.User, username string) (PublicUser, error) {
	if err := c.requireActor(actor); err != nil {
		return PublicUser{}, err
	}
	user, err := c.store.LookupUser(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return PublicUser{}, ErrNotFound
		}
		return PublicUser{}, storageErr(err)
	}
	return PublicView(user), nil
}

func (c *Controller) requireActor(actor *directory.User) error {
	if actor == nil || actor.Deleted {
		return ErrUnauthenticated
	}
	return nil
}

func (c *Controller) require(ctx context.Context, roleName string, caps ...rbac.Capability) error {
	ok, err := c.rbac.Authorize(ctx, roleName, caps...)
	if err != nil {
		return storageErr(err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func mapDuplicate(err error) error {
	switch {
	case errors.Is(err, directory.ErrDuplicateUsername):
		return ErrUsernameTaken
	case errors.Is(err, directory.ErrDuplicateEmail):
		return ErrEmailTaken
	default:
		return storageErr(err)
	}
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

package account

import (
	"context"
	"sync"
	"time"

	"wufwuf.org/internal/directory"
	"wufwuf.org/internal/ids"
)

// memStore is an in-memory directory.Store used by controller tests. Reads
// hand out copies so a failed operation can never leak partial mutations
// into the fixture.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*directory.User      // keyed by username, deleted rows included
	roles  map[string]directory.Role       // keyed by name
	perms  map[string]directory.Permission // keyed by name
	grants map[string]map[string]bool      // role id -> permission id -> granted

	failWith  error // forces every call to fail
	createErr error // overrides CreateUser, simulating a commit-time race
}

var _ directory.Store = (*memStore)(nil)

// newMemStore seeds roles and their granted permission names. Permission
// rows are created for every name mentioned in any grant list.
func newMemStore(grants map[string][]string) *memStore {
	s := &memStore{
		users:  make(map[string]*directory.User),
		roles:  make(map[string]directory.Role),
		perms:  make(map[string]directory.Permission),
		grants: make(map[string]map[string]bool),
	}
	for roleName, permNames := range grants {
		role := directory.Role{ID: "role_" + roleName, Name: roleName}
		s.roles[roleName] = role
		s.grants[role.ID] = make(map[string]bool)
		for _, permName := range permNames {
			perm, ok := s.perms[permName]
			if !ok {
				perm = directory.Permission{ID: "perm_" + permName, Name: permName}
				s.perms[permName] = perm
			}
			s.grants[role.ID][perm.ID] = true
		}
	}
	return s
}

// addUser inserts a fixture row, hashing nothing: tests provide the hash.
func (s *memStore) addUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	s.users[u.Username] = cloneUser(&u)
}

func cloneUser(u *directory.User) *directory.User {
	cp := *u
	if u.Age != nil {
		age := *u.Age
		cp.Age = &age
	}
	if u.DeletedDate != nil {
		d := *u.DeletedDate
		cp.DeletedDate = &d
	}
	return &cp
}

func (s *memStore) FindUserByUsername(_ context.Context, username string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[username]
	if !ok || u.Deleted {
		return nil, directory.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, u := range s.users {
		if u.Email == email && !u.Deleted {
			return cloneUser(u), nil
		}
	}
	return nil, directory.ErrNotFound
}

func (s *memStore) LookupUser(_ context.Context, username string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[username]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memStore) FindRoleByName(_ context.Context, name string) (*directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	role, ok := s.roles[name]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &role, nil
}

func (s *memStore) FindPermissionByName(_ context.Context, name string) (*directory.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	perm, ok := s.perms[name]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &perm, nil
}

func (s *memStore) RoleHasPermission(_ context.Context, roleID, permissionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	return s.grants[roleID][permissionID], nil
}

func (s *memStore) UsernameInUse(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	_, ok := s.users[username]
	return ok, nil
}

func (s *memStore) EmailInUse(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateUser(_ context.Context, u *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.users[u.Username]; ok {
		return directory.ErrDuplicateUsername
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return directory.ErrDuplicateEmail
		}
	}
	s.users[u.Username] = cloneUser(u)
	return nil
}

func (s *memStore) UpdateUser(_ context.Context, u *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	existing, ok := s.users[u.Username]
	if !ok || existing.Deleted {
		return directory.ErrNotFound
	}
	for name, other := range s.users {
		if name != u.Username && other.Email == u.Email {
			return directory.ErrDuplicateEmail
		}
	}
	s.users[u.Username] = cloneUser(u)
	return nil
}

func (s *memStore) SoftDeleteUser(_ context.Context, username string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	u, ok := s.users[username]
	if !ok || u.Deleted {
		return directory.ErrNotFound
	}
	u.Deleted = true
	u.DeletedDate = &when
	return nil
}

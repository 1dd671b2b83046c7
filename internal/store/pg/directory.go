package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"wufwuf.org/internal/directory"
)

const userColumns = `u.id, u.username, u.email, u.password_hash, u.age,
	coalesce(u.name,''), coalesce(u.lastname,''), u.role_id, r.name,
	u.creation_date, u.modification_date, u.deleted, u.deleted_date`

func scanUser(row interface{ Scan(...any) error }) (*directory.User, error) {
	var (
		u           directory.User
		age         sql.NullInt64
		deletedDate sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &age,
		&u.Name, &u.Lastname, &u.RoleID, &u.RoleName,
		&u.CreationDate, &u.ModificationDate, &u.Deleted, &deletedDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		u.Age = &v
	}
	if deletedDate.Valid {
		t := deletedDate.Time
		u.DeletedDate = &t
	}
	return &u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u join roles r on r.id = u.role_id
		where u.username = $1 and not u.deleted
	`, username)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u join roles r on r.id = u.role_id
		where u.email = $1 and not u.deleted
	`, email)
	return scanUser(row)
}

func (s *Store) LookupUser(ctx context.Context, username string) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u join roles r on r.id = u.role_id
		where u.username = $1
	`, username)
	return scanUser(row)
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*directory.Role, error) {
	var role directory.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description,'') from roles where name = $1
	`, name).Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) FindPermissionByName(ctx context.Context, name string) (*directory.Permission, error) {
	var perm directory.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description,'') from permissions where name = $1
	`, name).Scan(&perm.ID, &perm.Name, &perm.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *Store) RoleHasPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from role_permissions
			where role_id = $1 and permission_id = $2
		)
	`, roleID, permissionID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) UsernameInUse(ctx context.Context, username string) (bool, error) {
	// Deleted rows count: a soft-deleted username is never freed.
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) EmailInUse(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateUser(ctx context.Context, u *directory.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, username, email, password_hash, age, name, lastname,
			role_id, creation_date, modification_date, deleted)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false)
	`, u.ID, u.Username, u.Email, u.PasswordHash, nullableInt(u.Age),
		nullableString(u.Name), nullableString(u.Lastname), u.RoleID,
		u.CreationDate, u.ModificationDate)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *directory.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set email = $2, password_hash = $3, age = $4, name = $5, lastname = $6,
			role_id = $7, modification_date = $8
		where username = $1 and not deleted
	`, u.Username, u.Email, u.PasswordHash, nullableInt(u.Age),
		nullableString(u.Name), nullableString(u.Lastname), u.RoleID,
		u.ModificationDate)
	if err != nil {
		return mapConstraint(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, username string, when time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set deleted = true, deleted_date = $2
		where username = $1 and not deleted
	`, username, when)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// mapConstraint turns unique violations into the sentinel duplicate errors
// the controller treats as authoritative under races.
func mapConstraint(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	if pgErr.Code == pgErrForeignKeyViolation {
		// role_id pointing at a role removed between check and commit
		return directory.ErrNotFound
	}
	if pgErr.Code != pgErrUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return directory.ErrDuplicateUsername
	case strings.Contains(pgErr.ConstraintName, "email"):
		return directory.ErrDuplicateEmail
	default:
		return err
	}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

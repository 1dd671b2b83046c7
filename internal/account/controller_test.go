package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"wufwuf.org/internal/auth"
	"wufwuf.org/internal/directory"
)

// allPermissions is the full grant set of the seeded admin role.
var allPermissions = []string{
	"create_user", "edit_user", "edit_own_user", "delete_user", "delete_own_user",
	"create_member_user", "edit_member_user", "delete_member_user",
	"create_admin_user", "edit_admin_user", "delete_admin_user",
	"grant_member_role", "grant_admin_role",
}

// defaultGrants mirrors the seed data: members may only touch their own
// account, admins may do everything.
func defaultGrants() map[string][]string {
	return map[string][]string{
		"member": {"edit_own_user", "delete_own_user"},
		"admin":  allPermissions,
	}
}

func testController(t *testing.T, store directory.Store) (*Controller, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("controller-test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	ctrl, err := NewController(store, tokens)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, tokens
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func seedUser(t *testing.T, store *memStore, username, role, password string, age *int) directory.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	u := directory.User{
		Username:         username,
		Email:            username + "@example.org",
		PasswordHash:     mustHash(t, password),
		Age:              age,
		RoleID:           "role_" + role,
		RoleName:         role,
		CreationDate:     now,
		ModificationDate: now,
	}
	store.addUser(u)
	return u
}

func intPtr(v int) *int { return &v }

func TestAuthenticateIndistinguishableFailures(t *testing.T) {
	store := newMemStore(defaultGrants())
	seedUser(t, store, "bob", "member", "correct-horse", nil)
	gone := seedUser(t, store, "gone", "member", "correct-horse", nil)
	if err := store.SoftDeleteUser(context.Background(), gone.Username, time.Now()); err != nil {
		t.Fatalf("SoftDeleteUser: %v", err)
	}
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	cases := map[string][2]string{
		"unknown username": {"nobody", "correct-horse"},
		"wrong password":   {"bob", "wrong"},
		"deleted account":  {"gone", "correct-horse"},
		"blank password":   {"bob", ""},
	}
	for name, creds := range cases {
		if _, err := ctrl.Authenticate(ctx, creds[0], creds[1]); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}

	user, err := ctrl.Authenticate(ctx, "bob", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Username != "bob" || user.RoleName != "member" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestLoginIssuesVerifiableSession(t *testing.T) {
	store := newMemStore(defaultGrants())
	seedUser(t, store, "bob", "member", "correct-horse", intPtr(30))
	ctrl, tokens := testController(t, store)

	session, err := ctrl.Login(context.Background(), "bob", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if time.Until(session.ExpiresAt) <= 0 {
		t.Fatalf("expected a future expiry, got %v", session.ExpiresAt)
	}
	claims, err := tokens.Validate(session.Token)
	if err != nil {
		t.Fatalf("issued token must validate: %v", err)
	}
	if username, ok := claims.Username(); !ok || username != "bob" {
		t.Fatalf("unexpected username claim: %q ok=%v", username, ok)
	}
	if session.User.Username != "bob" || session.User.Role != "member" {
		t.Fatalf("unexpected projection: %+v", session.User)
	}
	if session.User.Age == nil || *session.User.Age != 30 {
		t.Fatalf("expected age in projection, got %v", session.User.Age)
	}
}

func TestResolveActor(t *testing.T) {
	store := newMemStore(defaultGrants())
	seedUser(t, store, "bob", "member", "correct-horse", nil)
	ctrl, tokens := testController(t, store)
	ctx := context.Background()

	token, _, err := tokens.IssueSession("bob")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	actor, err := ctrl.ResolveActor(ctx, token)
	if err != nil {
		t.Fatalf("ResolveActor: %v", err)
	}
	if actor.Username != "bob" {
		t.Fatalf("unexpected actor %q", actor.Username)
	}

	if _, err := ctrl.ResolveActor(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for garbage token, got %v", err)
	}

	// A valid token whose account was deleted afterwards no longer resolves.
	if err := store.SoftDeleteUser(ctx, "bob", time.Now()); err != nil {
		t.Fatalf("SoftDeleteUser: %v", err)
	}
	if _, err := ctrl.ResolveActor(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for deleted account, got %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	store := newMemStore(defaultGrants())
	admin := seedUser(t, store, "root", "admin", "root-password", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	created, err := ctrl.Create(ctx, &admin, CreateUserInput{
		Username: "dave",
		Email:    "dave@example.org",
		Password: "initial-password",
		Age:      intPtr(41),
		Name:     "Dave",
		Lastname: "Doe",
		Role:     "member",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if created.RoleName != "member" || created.RoleID != "role_member" {
		t.Fatalf("unexpected role: %+v", created)
	}
	if created.CreationDate.IsZero() || !created.CreationDate.Equal(created.ModificationDate) {
		t.Fatalf("timestamps not initialized: %+v", created)
	}
	if created.PasswordHash == "initial-password" || !auth.VerifyPassword(created.PasswordHash, "initial-password") {
		t.Fatalf("password must be stored hashed and verifiable")
	}

	stored, err := store.FindUserByUsername(ctx, "dave")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if stored.Age == nil || *stored.Age != 41 {
		t.Fatalf("age not persisted: %v", stored.Age)
	}
}

func TestCreateAuthorization(t *testing.T) {
	grants := defaultGrants()
	// support may create members but not admins
	grants["support"] = []string{"create_user", "create_member_user"}
	store := newMemStore(grants)
	member := seedUser(t, store, "bob", "member", "pw-bob", nil)
	support := seedUser(t, store, "sam", "support", "pw-sam", nil)
	admin := seedUser(t, store, "root", "admin", "pw-root", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	input := CreateUserInput{
		Username: "newbie",
		Email:    "newbie@example.org",
		Password: "pw-newbie",
		Role:     "member",
	}

	if _, err := ctrl.Create(ctx, nil, input); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("nil actor: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := ctrl.Create(ctx, &member, input); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member lacks create_user: expected ErrForbidden, got %v", err)
	}

	ghost := input
	ghost.Role = "ghost"
	if _, err := ctrl.Create(ctx, &admin, ghost); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unknown role: expected ErrInvalidRole, got %v", err)
	}

	elevated := input
	elevated.Role = "admin"
	if _, err := ctrl.Create(ctx, &support, elevated); !errors.Is(err, ErrForbidden) {
		t.Fatalf("support lacks create_admin_user: expected ErrForbidden, got %v", err)
	}
	if _, err := ctrl.Create(ctx, &support, input); err != nil {
		t.Fatalf("support creating a member should pass: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	store := newMemStore(defaultGrants())
	admin := seedUser(t, store, "root", "admin", "pw-root", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	base := CreateUserInput{
		Username: "valid_name",
		Email:    "valid@example.org",
		Password: "pw",
		Role:     "member",
	}

	blank := base
	blank.Username = "   "
	if _, err := ctrl.Create(ctx, &admin, blank); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank username: expected ErrInvalidInput, got %v", err)
	}

	badMail := base
	badMail.Email = "not-an-address"
	if _, err := ctrl.Create(ctx, &admin, badMail); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed email: expected ErrInvalidInput, got %v", err)
	}

	tooOld := base
	tooOld.Age = intPtr(151)
	if _, err := ctrl.Create(ctx, &admin, tooOld); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("age out of range: expected ErrInvalidInput, got %v", err)
	}

	negative := base
	negative.Age = intPtr(-1)
	if _, err := ctrl.Create(ctx, &admin, negative); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative age: expected ErrInvalidInput, got %v", err)
	}

	if _, err := ctrl.Create(ctx, &admin, base); err != nil {
		t.Fatalf("valid input should pass: %v", err)
	}
}

func TestCreateUniqueness(t *testing.T) {
	store := newMemStore(defaultGrants())
	admin := seedUser(t, store, "root", "admin", "pw-root", nil)
	seedUser(t, store, "bob", "member", "pw-bob", nil)
	retired := seedUser(t, store, "retired", "member", "pw-retired", nil)
	ctx := context.Background()
	if err := store.SoftDeleteUser(ctx, retired.Username, time.Now()); err != nil {
		t.Fatalf("SoftDeleteUser: %v", err)
	}
	ctrl, _ := testController(t, store)

	base := CreateUserInput{
		Username: "fresh",
		Email:    "fresh@example.org",
		Password: "pw",
		Role:     "member",
	}

	dupName := base
	dupName.Username = "bob"
	if _, err := ctrl.Create(ctx, &admin, dupName); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("active username: expected ErrUsernameTaken, got %v", err)
	}

	// a soft-deleted account keeps its username reserved forever
	dupDeleted := base
	dupDeleted.Username = "retired"
	if _, err := ctrl.Create(ctx, &admin, dupDeleted); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("deleted username: expected ErrUsernameTaken, got %v", err)
	}

	dupMail := base
	dupMail.Email = "bob@example.org"
	if _, err := ctrl.Create(ctx, &admin, dupMail); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("taken email: expected ErrEmailTaken, got %v", err)
	}

	// the constraint at commit time stays authoritative even when the
	// pre-checks raced past a concurrent insert
	store.createErr = directory.ErrDuplicateUsername
	if _, err := ctrl.Create(ctx, &admin, base); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("commit-time duplicate: expected ErrUsernameTaken, got %v", err)
	}
	store.createErr = directory.ErrDuplicateEmail
	if _, err := ctrl.Create(ctx, &admin, base); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("commit-time duplicate: expected ErrEmailTaken, got %v", err)
	}
}

func TestEditOwnAccount(t *testing.T) {
	store := newMemStore(defaultGrants())
	bob := seedUser(t, store, "bob", "member", "pw-bob", intPtr(30))
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	patch := EditUserInput{
		Email: bob.Email,
		Age:   intPtr(31),
		Role:  "member",
	}
	updated, err := ctrl.Edit(ctx, &bob, "bob", patch)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if updated.Age == nil || *updated.Age != 31 {
		t.Fatalf("age not updated: %v", updated.Age)
	}
	if !updated.ModificationDate.After(bob.ModificationDate) {
		t.Fatalf("modification date must advance")
	}

	// no self-promotion, no matter which grants the actor holds
	promote := patch
	promote.Role = "admin"
	if _, err := ctrl.Edit(ctx, &bob, "bob", promote); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self role change: expected ErrForbidden, got %v", err)
	}
}

func TestEditOtherAccounts(t *testing.T) {
	grants := defaultGrants()
	// ops can edit members but cannot move anyone into the admin role
	grants["ops"] = []string{"edit_user", "edit_member_user"}
	store := newMemStore(grants)
	admin := seedUser(t, store, "root", "admin", "pw-root", nil)
	ops := seedUser(t, store, "olga", "ops", "pw-olga", nil)
	bob := seedUser(t, store, "bob", "member", "pw-bob", intPtr(30))
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	keep := EditUserInput{Email: bob.Email, Age: intPtr(30), Role: "member"}

	// a member editing someone else is rejected before anything leaks
	if _, err := ctrl.Edit(ctx, &bob, "root", keep); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member editing admin: expected ErrForbidden, got %v", err)
	}
	// ...including usernames that do not exist
	if _, err := ctrl.Edit(ctx, &bob, "no-such-user", keep); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member probing for users: expected ErrForbidden, got %v", err)
	}
	// an actor holding edit_user gets the honest answer
	if _, err := ctrl.Edit(ctx, &admin, "no-such-user", keep); !errors.Is(err, ErrNotFound) {
		t.Fatalf("admin editing unknown user: expected ErrNotFound, got %v", err)
	}

	if _, err := ctrl.Edit(ctx, &ops, "bob", keep); err != nil {
		t.Fatalf("ops editing a member: %v", err)
	}

	promote := keep
	promote.Role = "admin"
	if _, err := ctrl.Edit(ctx, &ops, "bob", promote); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ops lacks grant_admin_role: expected ErrForbidden, got %v", err)
	}

	updated, err := ctrl.Edit(ctx, &admin, "bob", promote)
	if err != nil {
		t.Fatalf("admin promoting bob: %v", err)
	}
	if updated.RoleName != "admin" || updated.RoleID != "role_admin" {
		t.Fatalf("role change not applied: %+v", updated)
	}
	// ops may no longer touch bob now that he is an admin
	if _, err := ctrl.Edit(ctx, &ops, "bob", promote); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ops lacks edit_admin_user: expected ErrForbidden, got %v", err)
	}
}

func TestEditEmailUniqueness(t *testing.T) {
	store := newMemStore(defaultGrants())
	bob := seedUser(t, store, "bob", "member", "pw-bob", nil)
	seedUser(t, store, "carol", "member", "pw-carol", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	// keeping one's own address is not a conflict
	if _, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: "bob@example.org", Role: "member"}); err != nil {
		t.Fatalf("unchanged email: %v", err)
	}
	if _, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: "carol@example.org", Role: "member"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("taken email: expected ErrEmailTaken, got %v", err)
	}
	if _, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: "nonsense", Role: "member"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed email: expected ErrInvalidInput, got %v", err)
	}

	updated, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: "robert@example.org", Role: "member"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if updated.Email != "robert@example.org" {
		t.Fatalf("email not applied: %q", updated.Email)
	}
}

func TestEditPasswordHandling(t *testing.T) {
	store := newMemStore(defaultGrants())
	bob := seedUser(t, store, "bob", "member", "pw-original", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	// an empty password in the patch keeps the stored hash
	if _, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: bob.Email, Role: "member"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := ctrl.Authenticate(ctx, "bob", "pw-original"); err != nil {
		t.Fatalf("original password must survive a password-less edit: %v", err)
	}

	if _, err := ctrl.Edit(ctx, &bob, "bob", EditUserInput{Email: bob.Email, Password: "pw-rotated", Role: "member"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := ctrl.Authenticate(ctx, "bob", "pw-rotated"); err != nil {
		t.Fatalf("rotated password must authenticate: %v", err)
	}
	if _, err := ctrl.Authenticate(ctx, "bob", "pw-original"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("old password must stop working, got %v", err)
	}
}

func TestDeleteAccounts(t *testing.T) {
	grants := defaultGrants()
	grants["ops"] = []string{"delete_user", "delete_member_user"}
	store := newMemStore(grants)
	admin := seedUser(t, store, "root", "admin", "pw-root", nil)
	ops := seedUser(t, store, "olga", "ops", "pw-olga", nil)
	bob := seedUser(t, store, "bob", "member", "pw-bob", nil)
	seedUser(t, store, "carol", "member", "pw-carol", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	// members cannot delete other accounts, nor learn which exist
	if err := ctrl.Delete(ctx, &bob, "carol"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member deleting other: expected ErrForbidden, got %v", err)
	}
	if err := ctrl.Delete(ctx, &bob, "no-such-user"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member probing: expected ErrForbidden, got %v", err)
	}
	if err := ctrl.Delete(ctx, &admin, "no-such-user"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("admin deleting unknown: expected ErrNotFound, got %v", err)
	}

	// ops may remove members but not admins
	if err := ctrl.Delete(ctx, &ops, "root"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ops lacks delete_admin_user: expected ErrForbidden, got %v", err)
	}
	if err := ctrl.Delete(ctx, &ops, "carol"); err != nil {
		t.Fatalf("ops deleting a member: %v", err)
	}

	// delete_own_user alone covers removing one's own account
	if err := ctrl.Delete(ctx, &bob, "bob"); err != nil {
		t.Fatalf("self-delete: %v", err)
	}

	// soft delete: login stops working, the record stays readable, and the
	// username is reserved forever
	if _, err := ctrl.Authenticate(ctx, "bob", "pw-bob"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("deleted account must not authenticate, got %v", err)
	}
	view, err := ctrl.View(ctx, &admin, "bob")
	if err != nil {
		t.Fatalf("View after delete: %v", err)
	}
	if view.Username != "bob" {
		t.Fatalf("unexpected view: %+v", view)
	}
	raw, err := store.LookupUser(ctx, "bob")
	if err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if !raw.Deleted || raw.DeletedDate == nil {
		t.Fatalf("soft-delete bookkeeping missing: %+v", raw)
	}
	if _, err := ctrl.Create(ctx, &admin, CreateUserInput{
		Username: "bob",
		Email:    "bob2@example.org",
		Password: "pw",
		Role:     "member",
	}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("deleted username must stay reserved, got %v", err)
	}

	// deleting twice reports the row as gone
	if err := ctrl.Delete(ctx, &admin, "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}

// TestMemberLifecycle runs a full pass over a member account holding only
// edit_own_user: the one grant lets the account adjust its own fields and
// nothing else.
func TestMemberLifecycle(t *testing.T) {
	store := newMemStore(map[string][]string{
		"member": {"edit_own_user"},
		"admin":  allPermissions,
	})
	seedUser(t, store, "bob", "member", "pw-bob", intPtr(30))
	seedUser(t, store, "alice", "admin", "pw-alice", nil)
	ctrl, _ := testController(t, store)
	ctx := context.Background()

	session, err := ctrl.Login(ctx, "bob", "pw-bob")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	bob, err := ctrl.ResolveActor(ctx, session.Token)
	if err != nil {
		t.Fatalf("ResolveActor: %v", err)
	}

	updated, err := ctrl.Edit(ctx, bob, "bob", EditUserInput{
		Email: bob.Email,
		Age:   intPtr(31),
		Role:  "member",
	})
	if err != nil {
		t.Fatalf("own-field edit must pass: %v", err)
	}
	if updated.Age == nil || *updated.Age != 31 {
		t.Fatalf("age not updated: %v", updated.Age)
	}

	if _, err := ctrl.Edit(ctx, bob, "bob", EditUserInput{
		Email: bob.Email,
		Age:   intPtr(31),
		Role:  "admin",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self-promotion: expected ErrForbidden, got %v", err)
	}

	if _, err := ctrl.Edit(ctx, bob, "alice", EditUserInput{
		Email: "alice@example.org",
		Role:  "admin",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("editing another account: expected ErrForbidden, got %v", err)
	}

	// without delete_own_user even the own account stays
	if err := ctrl.Delete(ctx, bob, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete without grant: expected ErrForbidden, got %v", err)
	}
}

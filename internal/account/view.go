package account

import (
	"time"

	"wufwuf.org/internal/directory"
)

// PublicUser is the allow-list projection of a user returned at the API
// boundary. The externally visible field set is fixed here, statically:
// the password hash and soft-delete bookkeeping never leave the core.
type PublicUser struct {
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	Lastname         string    `json:"lastname,omitempty"`
	Age              *int      `json:"age,omitempty"`
	Role             string    `json:"role"`
	CreationDate     time.Time `json:"creation_date"`
	ModificationDate time.Time `json:"modification_date"`
}

// PublicView projects a directory record onto the externally visible
// field set.
func PublicView(u *directory.User) PublicUser {
	return PublicUser{
		Username:         u.Username,
		Email:            u.Email,
		Name:             u.Name,
		Lastname:         u.Lastname,
		Age:              u.Age,
		Role:             u.RoleName,
		CreationDate:     u.CreationDate,
		ModificationDate: u.ModificationDate,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      PublicUser `json:"user"`
}

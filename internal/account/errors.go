package account

import "errors"

// Operation outcomes. Every lifecycle check fails closed: the first failing
// check terminates the operation with its specific kind and nothing is
// written. Unauthenticated and Forbidden deliberately carry no detail about
// why they fired.
var (
	ErrUnauthenticated = errors.New("account: unauthenticated")
	ErrForbidden       = errors.New("account: forbidden")
	ErrInvalidInput    = errors.New("account: invalid input")
	ErrInvalidRole     = errors.New("account: unknown role")
	ErrInvalidPassword = errors.New("account: password cannot be hashed")
	ErrUsernameTaken   = errors.New("account: username already taken")
	ErrEmailTaken      = errors.New("account: email already taken")
	ErrNotFound        = errors.New("account: user not found")
	ErrStorage         = errors.New("account: storage failure")
)

package account

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	minAge = 0
	maxAge = 150
)

func validateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return nil
}

func validateAge(age *int) error {
	if age == nil {
		return nil
	}
	if *age < minAge || *age > maxAge {
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidInput, minAge, maxAge)
	}
	return nil
}

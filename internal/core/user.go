package core

import (
	"net/mail"
	"strings"
)

const (
	minPasswordLength = 6
	// bcrypt only hashes the first 72 bytes and refuses longer input.
	maxPasswordBytes = 72
)

// NormalizeEmail trims and lower-cases an email so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare RFC 5322 address with a dotted domain.
// Display names ("Bob <bob@x.io>") are rejected.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return ErrInvalidEmail
	}
	return nil
}

// Validate checks the registration fields before anything is stored.
func (u NewUser) Validate() error {
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if strings.TrimSpace(u.FullName) == "" {
		return ErrMissingFullName
	}
	if len(u.Password) < minPasswordLength || len(u.Password) > maxPasswordBytes || strings.TrimSpace(u.Password) == "" {
		return ErrInvalidPassword
	}
	return nil
}

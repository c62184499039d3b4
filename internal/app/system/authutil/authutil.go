// internal/app/system/authutil/authutil.go
package authutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/waffle/pantry/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest password accepted at registration.
	MinPasswordLength = 6
	// MaxPasswordLength caps input; bcrypt ignores bytes past 72 anyway.
	MaxPasswordLength = 128
	// BcryptCost is the work factor for stored password hashes.
	BcryptCost = bcrypt.DefaultCost
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	ErrPasswordCommon   = errors.New("password is too common")
	ErrInvalidEmail     = errors.New("email address is not valid")
)

var commonPasswords = map[string]bool{
	"123456": true, "1234567": true, "12345678": true, "123456789": true,
	"password": true, "qwerty": true, "abc123": true, "iloveyou": true,
	"letmein": true, "football": true, "welcome": true, "monkey": true,
	"111111": true, "dragon": true, "sunshine": true, "admin": true,
}

// ValidatePassword checks length and rejects well-known passwords.
func ValidatePassword(pw string) error {
	switch {
	case len(pw) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(pw) > MaxPasswordLength:
		return ErrPasswordTooLong
	case commonPasswords[strings.ToLower(pw)]:
		return ErrPasswordCommon
	}
	return nil
}

// PasswordRules describes ValidatePassword for display to users.
func PasswordRules() string {
	return fmt.Sprintf("Passwords must be %d to %d characters and not a common password.",
		MinPasswordLength, MaxPasswordLength)
}

// HashPassword returns a bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether pw matches hash. A malformed hash never
// matches.
func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// ValidateEmail returns ErrInvalidEmail unless email looks deliverable.
func ValidateEmail(email string) error {
	if !isValidEmail(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// isValidEmail adds domain shape checks on top of waffle's syntax check.
func isValidEmail(email string) bool {
	if !validate.SimpleEmailValid(email) {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || strings.Count(email, "@") != 1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1 && !strings.HasPrefix(domain, ".")
}

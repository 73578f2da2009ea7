package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	se "wuyrush.io/pinboard/errors"
)

const (
	bcryptCost = 10
	// bcrypt only looks at this many bytes of a password
	PasswordMaxBytes = 72
)

// HashPassword returns the salted one-way hash of passwd. Passwords over PasswordMaxBytes are rejected
// as bad input.
func HashPassword(passwd string) (string, *se.Err) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", se.NewBadInput("Password must not be longer than 72 bytes").WithCause(err)
		}
		return "", se.NewServiceFailure("error processing user password").WithCause(err)
	}
	return string(hash), nil
}

// CheckPassword reports whether passwd matches hash
func CheckPassword(hash, passwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwd)) == nil
}

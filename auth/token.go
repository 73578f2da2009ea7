// Package auth vends credential issuing/verification and password hashing.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	se "wuyrush.io/pinboard/errors"
)

// Issuer signs and verifies credentials with a process-wide secret. An Issuer is immutable once
// created.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. It fails when secret is empty or ttl is not positive.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("non-positive token ttl")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns how long issued credentials stay valid
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed credential for the given user id
func (i *Issuer) Issue(userID string) (string, *se.Err) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", se.NewServiceFailure("error issuing token").WithCause(err)
	}
	return signed, nil
}

// Verify checks signature and expiry of token and returns the user id it was issued for
func (i *Issuer) Verify(token string) (string, *se.Err) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", se.NewExpiredCredential().WithCause(err)
		}
		return "", se.NewInvalidCredential().WithCause(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", se.NewInvalidCredential()
	}
	return claims.Subject, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, forged and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

const DefaultTokenTTL = 24 * time.Hour

type sessionClaims struct {
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	CompanyName string `json:"company_name"`
	WizardID    string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token carrying s.
func (t *TokenIssuer) Issue(s Session) (string, error) {
	if s.Username == "" {
		return "", errors.New("empty username passed to Issue")
	}
	now := t.now()
	claims := sessionClaims{
		Username:    s.Username,
		Role:        s.Role,
		CompanyName: s.CompanyName,
		WizardID:    s.WizardID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the session it carries.
func (t *TokenIssuer) Parse(raw string) (Session, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	return Session{
		Username:    claims.Username,
		Role:        claims.Role,
		CompanyName: claims.CompanyName,
		WizardID:    claims.WizardID,
	}, nil
}

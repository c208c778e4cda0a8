// Package auth resolves bearer tokens into roles.Actor values.
//
// Tokens are HS256 JWTs whose sub claim is the user ID. Role and active flag
// always come from the Directory, never from the token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/po-approvals/internal/roles"
)

// ErrUnauthenticated means the credential could not be resolved to a user.
var ErrUnauthenticated = errors.New("could not validate credentials")

// Claims is the token payload. Role is informational only.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for u valid for ttl from now.
func IssueToken(secret []byte, u *User, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Gate authenticates a bearer credential.
type Gate interface {
	Authenticate(ctx context.Context, credential string) (roles.Actor, error)
}

// JWTGate verifies tokens and looks their subject up in a Directory.
type JWTGate struct {
	secret  []byte
	users   Directory
	nowFunc func() time.Time
}

// NewJWTGate returns a Gate for tokens signed with secret.
func NewJWTGate(secret []byte, users Directory) *JWTGate {
	return &JWTGate{secret: secret, users: users, nowFunc: time.Now}
}

// Authenticate returns the actor for credential. Inactive users are returned
// with Active=false; rejecting them is the caller's decision.
func (g *JWTGate) Authenticate(ctx context.Context, credential string) (roles.Actor, error) {
	if credential == "" {
		return roles.Actor{}, fmt.Errorf("missing token: %w", ErrUnauthenticated)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return roles.Actor{}, fmt.Errorf("%v: %w", err, ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return roles.Actor{}, fmt.Errorf("token has no subject: %w", ErrUnauthenticated)
	}

	u, err := g.users.LookupUser(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return roles.Actor{}, fmt.Errorf("unknown subject %s: %w", claims.Subject, ErrUnauthenticated)
	}
	if err != nil {
		return roles.Actor{}, err
	}
	return u.Actor(), nil
}

// Package identity adapts external identity providers to the narrow surface
// the account service consumes.
package identity

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound = errors.New("identity: user not found")
	ErrEmailExists  = errors.New("identity: email already exists")
	ErrInvalidToken = errors.New("identity: invalid id token")
)

// UserRecord is the provider-side view of an account.
type UserRecord struct {
	UID           string
	Email         string
	EmailVerified bool
	Disabled      bool
	CustomClaims  map[string]interface{}
}

// Token is a verified id token.
type Token struct {
	UID    string
	Claims map[string]interface{}
}

// Admin reports whether the token carries the admin custom claim.
func (t *Token) Admin() bool {
	if t == nil || t.Claims == nil {
		return false
	}
	admin, ok := t.Claims["admin"].(bool)
	return ok && admin
}

// Provider is the identity SDK surface used by the service.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (string, error)
	GetUser(ctx context.Context, uid string) (*UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	UpdatePassword(ctx context.Context, uid, password string) error
	SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error
	RevokeRefreshTokens(ctx context.Context, uid string) error
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
	EmailVerificationLink(ctx context.Context, email string) (string, error)
}

// SignInClient exchanges email and password for an id token.
type SignInClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
}

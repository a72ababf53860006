package identity

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// FirebaseProvider delegates to Firebase Authentication.
type FirebaseProvider struct {
	client *auth.Client
	logger *zap.Logger
}

// NewFirebaseProvider wraps an initialised Firebase auth client.
func NewFirebaseProvider(client *auth.Client, logger *zap.Logger) *FirebaseProvider {
	return &FirebaseProvider{client: client, logger: logger}
}

func (p *FirebaseProvider) CreateUser(ctx context.Context, email, password string) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		EmailVerified(false)

	record, err := p.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
		return "", fmt.Errorf("failed to create firebase user: %w", err)
	}
	p.logger.Info("firebase user created", zap.String("uid", record.UID))
	return record.UID, nil
}

func (p *FirebaseProvider) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	record, err := p.client.GetUser(ctx, uid)
	if err != nil {
		return nil, p.wrapUserError(err, "get", uid)
	}
	return &UserRecord{
		UID:           record.UID,
		Email:         record.Email,
		EmailVerified: record.EmailVerified,
		Disabled:      record.Disabled,
		CustomClaims:  record.CustomClaims,
	}, nil
}

func (p *FirebaseProvider) DeleteUser(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		return p.wrapUserError(err, "delete", uid)
	}
	return nil
}

func (p *FirebaseProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	if _, err := p.client.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).Password(password)); err != nil {
		return p.wrapUserError(err, "update", uid)
	}
	return nil
}

func (p *FirebaseProvider) SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	if err := p.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return p.wrapUserError(err, "set claims for", uid)
	}
	return nil
}

func (p *FirebaseProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := p.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return p.wrapUserError(err, "revoke tokens of", uid)
	}
	return nil
}

// VerifyIDToken also rejects tokens issued before the last RevokeRefreshTokens.
func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	token, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenInvalid(err) || auth.IsIDTokenExpired(err) || auth.IsIDTokenRevoked(err) ||
			auth.IsUserDisabled(err) || auth.IsUserNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("failed to verify firebase id token: %w", err)
	}
	return &Token{UID: token.UID, Claims: token.Claims}, nil
}

func (p *FirebaseProvider) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	link, err := p.client.EmailVerificationLink(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification link: %w", err)
	}
	return link, nil
}

func (p *FirebaseProvider) wrapUserError(err error, op, uid string) error {
	if auth.IsUserNotFound(err) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return fmt.Errorf("failed to %s firebase user %s: %w", op, uid, err)
}

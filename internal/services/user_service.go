package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/petercegoh/cs203-MatchMage/internal/identity"
	"github.com/petercegoh/cs203-MatchMage/internal/models"
	"github.com/petercegoh/cs203-MatchMage/internal/repositories"
	"github.com/petercegoh/cs203-MatchMage/internal/validation"
	"github.com/petercegoh/cs203-MatchMage/pkg/mailer"

	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// UserService handles registration, login and profile management. Every
// operation validates its input and then delegates to the identity provider,
// the profile store or the mailer.
//
// The username uniqueness check and the following write are not atomic:
// concurrent registrations of the same name can both succeed.
type UserService struct {
	identity identity.Provider
	signIn   identity.SignInClient
	users    repositories.UserRepository
	mailer   mailer.Mailer
	logger   *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	idp identity.Provider,
	signIn identity.SignInClient,
	users repositories.UserRepository,
	m mailer.Mailer,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		identity: idp,
		signIn:   signIn,
		users:    users,
		mailer:   m,
		logger:   logger,
	}
}

// CreateUser registers an account and sends the verification email. A failed
// email does not fail the registration; it is reported in the result.
func (s *UserService) CreateUser(ctx context.Context, register models.Register) (*models.Registration, error) {
	if !validation.IsPasswordValid(register.Password) {
		return nil, invalid("password", validation.MsgPassword)
	}

	uid, err := s.CreateAccountInAuth(ctx, register.Email, register.Password)
	if err != nil {
		return nil, err
	}

	result := &models.Registration{UID: uid}
	if err := s.SendVerificationEmail(ctx, uid); err != nil {
		s.logger.Warn("verification email not sent", zap.String("uid", uid), zap.Error(err))
		result.VerificationError = err.Error()
	} else {
		result.VerificationEmailSent = true
	}

	s.logger.Info("account registered", zap.String("uid", uid), zap.Bool("verification_sent", result.VerificationEmailSent))
	return result, nil
}

// CreateAccountInAuth creates an unverified account and returns its uid.
func (s *UserService) CreateAccountInAuth(ctx context.Context, email, password string) (string, error) {
	uid, err := s.identity.CreateUser(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			return "", fmt.Errorf("%w: %s", ErrEmailExists, email)
		}
		return "", fmt.Errorf("failed to create account: %w", err)
	}
	return uid, nil
}

// SetAdminAuthority grants the admin custom claim.
func (s *UserService) SetAdminAuthority(ctx context.Context, uid string) error {
	if err := s.identity.SetCustomClaims(ctx, uid, map[string]interface{}{"admin": true}); err != nil {
		return mapIdentityError(err)
	}
	s.logger.Info("admin authority granted", zap.String("uid", uid))
	return nil
}

// SendVerificationEmail looks the account up, asks the provider for a
// verification link and hands it to the mailer.
func (s *UserService) SendVerificationEmail(ctx context.Context, uid string) error {
	record, err := s.identity.GetUser(ctx, uid)
	if err != nil {
		return mapIdentityError(err)
	}

	link, err := s.identity.EmailVerificationLink(ctx, record.Email)
	if err != nil {
		return fmt.Errorf("failed to generate verification link: %w", err)
	}

	if err := s.mailer.SendVerificationEmail(ctx, record.Email, link); err != nil {
		return fmt.Errorf("failed to dispatch verification email: %w", err)
	}
	return nil
}

// CreateUserDetails validates and writes the profile document of uid.
// Nothing is written when a rule fails.
func (s *UserService) CreateUserDetails(ctx context.Context, user models.User, uid string) error {
	if err := validateGenderAndBirthday(user); err != nil {
		return err
	}
	if err := s.checkUsername(ctx, user.UserName, uid); err != nil {
		return err
	}

	user.UserNameLower = strings.ToLower(user.UserName)
	if _, err := s.users.Save(ctx, uid, &user); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// UpdateUser rewrites an existing profile and returns the store's update time.
// The username is only re-checked when it changes.
func (s *UserService) UpdateUser(ctx context.Context, user models.User, uid string) (time.Time, error) {
	if err := validateGenderAndBirthday(user); err != nil {
		return time.Time{}, err
	}

	existing, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return time.Time{}, mapStoreError(err)
	}
	if !strings.EqualFold(existing.UserName, user.UserName) {
		if err := s.checkUsername(ctx, user.UserName, uid); err != nil {
			return time.Time{}, err
		}
	}

	user.UserNameLower = strings.ToLower(user.UserName)
	updated, err := s.users.Save(ctx, uid, &user)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to store profile: %w", err)
	}
	return updated, nil
}

func (s *UserService) UpdatePassword(ctx context.Context, newPassword, uid string) error {
	if !validation.IsPasswordValid(newPassword) {
		return invalid("password", validation.MsgPassword)
	}
	if err := s.identity.UpdatePassword(ctx, uid, newPassword); err != nil {
		return mapIdentityError(err)
	}
	return nil
}

// DeleteUser removes the account and then the profile. The two deletes are
// not transactional; a failed profile delete yields a *PartialDeleteError.
func (s *UserService) DeleteUser(ctx context.Context, uid string) error {
	if err := s.identity.DeleteUser(ctx, uid); err != nil {
		return mapIdentityError(err)
	}
	if err := s.users.Delete(ctx, uid); err != nil {
		s.logger.Error("profile orphaned after account deletion", zap.String("uid", uid), zap.Error(err))
		return &PartialDeleteError{UID: uid, Err: err}
	}
	s.logger.Info("account deleted", zap.String("uid", uid))
	return nil
}

// DecodeBearerToken verifies an Authorization header value of the form "Bearer <id token>".
func (s *UserService) DecodeBearerToken(ctx context.Context, bearerToken string) (*identity.Token, error) {
	if !strings.HasPrefix(bearerToken, bearerPrefix) {
		return nil, ErrInvalidBearerToken
	}
	return s.VerifyIDToken(ctx, strings.TrimPrefix(bearerToken, bearerPrefix))
}

// GetIDToken returns the uid of a bearer token.
func (s *UserService) GetIDToken(ctx context.Context, bearerToken string) (string, error) {
	token, err := s.DecodeBearerToken(ctx, bearerToken)
	if err != nil {
		return "", err
	}
	return token.UID, nil
}

func (s *UserService) VerifyIDToken(ctx context.Context, idToken string) (*identity.Token, error) {
	token, err := s.identity.VerifyIDToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return token, nil
}

func (s *UserService) IsEmailVerified(ctx context.Context, idToken string) (bool, error) {
	token, err := s.VerifyIDToken(ctx, idToken)
	if err != nil {
		return false, err
	}
	record, err := s.identity.GetUser(ctx, token.UID)
	if err != nil {
		return false, mapIdentityError(err)
	}
	return record.EmailVerified, nil
}

// Login exchanges credentials for an id token. Accounts whose email is not
// verified are refused even when the exchange succeeds.
func (s *UserService) Login(ctx context.Context, login models.Login) (string, error) {
	if !validation.IsEmailValid(login.Email) {
		return "", invalid("email", validation.MsgLoginEmail)
	}
	if utf8.RuneCountInString(login.Password) < validation.PasswordMinLength {
		return "", invalid("password", validation.MsgLoginPassword)
	}

	token, err := s.signIn.SignInWithPassword(ctx, login.Email, login.Password)
	if err != nil {
		return "", s.classifySignInError(err)
	}

	verified, err := s.IsEmailVerified(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to check email verification: %w", err)
	}
	if !verified {
		s.logger.Info("login refused, email not verified", zap.String("email", login.Email))
		return "", ErrEmailNotVerified
	}
	return token, nil
}

// classifySignInError maps the provider's free-text refusals. Client errors
// other than throttling and blocking collapse into ErrInvalidCredentials so
// the real reason is not disclosed.
func (s *UserService) classifySignInError(err error) error {
	var signInErr *identity.SignInError
	if !errors.As(err, &signInErr) {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	switch {
	case signInErr.ClientError():
		msg := signInErr.Message
		if strings.Contains(msg, "too-many-requests") || strings.Contains(msg, "TOO_MANY_ATTEMPTS_TRY_LATER") {
			return ErrTooManyRequests
		}
		if signInErr.StatusCode == http.StatusForbidden && strings.Contains(msg, "blocked") {
			return &AccessDeniedError{Message: msg}
		}
		s.logger.Debug("sign-in refused", zap.Int("status", signInErr.StatusCode), zap.String("code", signInErr.Code))
		return ErrInvalidCredentials
	case signInErr.ServerError():
		return &UpstreamError{StatusCode: signInErr.StatusCode, Message: signInErr.Message}
	default:
		return fmt.Errorf("something went wrong: %w", err)
	}
}

// LogoutUser revokes every refresh token of uid.
func (s *UserService) LogoutUser(ctx context.Context, uid string) error {
	if err := s.identity.RevokeRefreshTokens(ctx, uid); err != nil {
		return mapIdentityError(err)
	}
	return nil
}

func (s *UserService) UserExists(ctx context.Context, uid string) (bool, error) {
	return s.users.Exists(ctx, uid)
}

func (s *UserService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]models.User, error) {
	return s.users.GetAll(ctx)
}

// GetPlayer finds a profile by its exact username.
func (s *UserService) GetPlayer(ctx context.Context, userName string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, userName)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (s *UserService) GetUserEmail(ctx context.Context, uid string) (string, error) {
	record, err := s.identity.GetUser(ctx, uid)
	if err != nil {
		return "", mapIdentityError(err)
	}
	return record.Email, nil
}

// checkUsername validates the format, then looks for another profile holding
// the same name in any letter case.
func (s *UserService) checkUsername(ctx context.Context, userName, uid string) error {
	if !validation.IsUsernameValid(userName) {
		return invalid("userName", validation.MsgUsername)
	}
	matches, err := s.users.FindByUsernameKey(ctx, strings.ToLower(userName))
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	for _, m := range matches {
		if m.ID != uid {
			return ErrUsernameTaken
		}
	}
	return nil
}

func validateGenderAndBirthday(user models.User) error {
	if !validation.IsGenderValid(user.Gender) {
		return invalid("gender", validation.MsgGender)
	}
	if !validation.IsBirthdayValid(user.Birthday) {
		return invalid("birthday", validation.MsgBirthday)
	}
	return nil
}

func mapIdentityError(err error) error {
	if errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", ErrUserNotFound, err)
	}
	return err
}

func mapStoreError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrUserNotFound, err)
	}
	return err
}

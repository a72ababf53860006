package identity_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newLocalProvider(t *testing.T, cfg identity.LocalConfig) *identity.LocalProvider {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:8080/"
	}
	p, err := identity.NewLocalProvider(newTestDB(t), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func requireSignInCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var signInErr *identity.SignInError
	require.ErrorAs(t, err, &signInErr)
	assert.Equal(t, status, signInErr.StatusCode)
	assert.Equal(t, code, signInErr.Code)
	assert.Contains(t, signInErr.Message, code)
}

func TestNewLocalProvider_RequiresSecret(t *testing.T) {
	_, err := identity.NewLocalProvider(newTestDB(t), identity.LocalConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLocalProvider_CreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{})

	uid, err := p.CreateUser(ctx, " Mage@MatchMage.app ", "Secret1!")
	require.NoError(t, err)
	assert.NotEmpty(t, uid)

	_, err = p.CreateUser(ctx, "mage@matchmage.app", "Other1!x")
	assert.ErrorIs(t, err, identity.ErrEmailExists)

	record, err := p.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, uid, record.UID)
	assert.Equal(t, "mage@matchmage.app", record.Email)
	assert.False(t, record.EmailVerified)
	assert.Empty(t, record.CustomClaims)

	_, err = p.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestLocalProvider_SignIn(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{TokenTTL: time.Minute})
	uid, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	result, err := p.SignIn(ctx, "MAGE@matchmage.app", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, uid, result.LocalID)
	assert.Equal(t, "mage@matchmage.app", result.Email)
	assert.Equal(t, time.Minute, result.ExpiresIn)

	token, err := p.VerifyIDToken(ctx, result.IDToken)
	require.NoError(t, err)
	assert.Equal(t, uid, token.UID)
	assert.Equal(t, "mage@matchmage.app", token.Claims["email"])
	assert.Equal(t, false, token.Claims["email_verified"])
	assert.False(t, token.Admin())

	_, err = p.SignInWithPassword(ctx, "mage@matchmage.app", "Wrong1!x")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeInvalidCredentials)

	_, err = p.SignInWithPassword(ctx, "nobody@matchmage.app", "Secret1!")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeInvalidCredentials)
}

func TestLocalProvider_SignInRateLimit(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{SignInInterval: time.Hour, SignInBurst: 2})
	_, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, "mage@matchmage.app", "Wrong1!x")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeInvalidCredentials)
	_, err = p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeTooManyAttempts)
	assert.Contains(t, err.Error(), "TOO_MANY_ATTEMPTS_TRY_LATER")

	// Limits are kept per address.
	_, err = p.SignInWithPassword(ctx, "other@matchmage.app", "Secret1!")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeInvalidCredentials)
}

func TestLocalProvider_EmailVerification(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{})
	uid, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	link, err := p.EmailVerificationLink(ctx, "mage@matchmage.app")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:8080"+identity.VerifyEmailPath+"?oobCode="), link)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	oobCode := parsed.Query().Get("oobCode")

	// A verification code is not an id token.
	_, err = p.VerifyIDToken(ctx, oobCode)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	require.NoError(t, p.VerifyEmail(ctx, oobCode))
	record, err := p.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.True(t, record.EmailVerified)

	assert.ErrorIs(t, p.VerifyEmail(ctx, "garbage"), identity.ErrInvalidToken)

	_, err = p.EmailVerificationLink(ctx, "nobody@matchmage.app")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestLocalProvider_CustomClaims(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{})
	uid, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	require.NoError(t, p.SetCustomClaims(ctx, uid, map[string]interface{}{"admin": true}))
	record, err := p.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, true, record.CustomClaims["admin"])

	idToken, err := p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)
	token, err := p.VerifyIDToken(ctx, idToken)
	require.NoError(t, err)
	assert.True(t, token.Admin())

	assert.ErrorIs(t, p.SetCustomClaims(ctx, "missing", map[string]interface{}{"admin": true}), identity.ErrUserNotFound)
}

func TestLocalProvider_RevokeRefreshTokens(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{})
	uid, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	before, err := p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	require.NoError(t, p.RevokeRefreshTokens(ctx, uid))
	_, err = p.VerifyIDToken(ctx, before)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	time.Sleep(2 * time.Millisecond)
	after, err := p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)
	_, err = p.VerifyIDToken(ctx, after)
	assert.NoError(t, err)
}

func TestLocalProvider_UpdatePasswordAndDelete(t *testing.T) {
	ctx := context.Background()
	p := newLocalProvider(t, identity.LocalConfig{})
	uid, err := p.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	require.NoError(t, p.UpdatePassword(ctx, uid, "Changed2@"))
	_, err = p.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	requireSignInCode(t, err, http.StatusBadRequest, identity.CodeInvalidCredentials)
	idToken, err := p.SignInWithPassword(ctx, "mage@matchmage.app", "Changed2@")
	require.NoError(t, err)

	require.NoError(t, p.DeleteUser(ctx, uid))
	assert.ErrorIs(t, p.DeleteUser(ctx, uid), identity.ErrUserNotFound)
	_, err = p.VerifyIDToken(ctx, idToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	assert.ErrorIs(t, p.UpdatePassword(ctx, uid, "Changed3#"), identity.ErrUserNotFound)
}

func TestLocalProvider_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	issuer := newLocalProvider(t, identity.LocalConfig{Secret: "issuer-secret"})
	verifier := newLocalProvider(t, identity.LocalConfig{Secret: "other-secret"})

	_, err := issuer.CreateUser(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)
	idToken, err := issuer.SignInWithPassword(ctx, "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)

	_, err = verifier.VerifyIDToken(ctx, idToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Identity toolkit error codes reproduced by the local emulator.
const (
	CodeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeUserDisabled       = "USER_DISABLED"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS_TRY_LATER : too-many-requests"
)

const (
	purposeIDToken     = "id"
	purposeVerifyEmail = "verifyEmail"

	verificationLinkTTL = 24 * time.Hour
	// EmulatorMount prefixes the emulated identity toolkit routes.
	EmulatorMount = "/identitytoolkit"
	// VerifyEmailPath is where the emulator serves verification links.
	VerifyEmailPath = "/identity/verify-email"
)

// Account is an emulated identity provider account.
type Account struct {
	UID              string `gorm:"primaryKey;type:varchar(36)"`
	Email            string `gorm:"uniqueIndex;type:varchar(255)"`
	PasswordHash     string `gorm:"type:varchar(255)"`
	EmailVerified    bool
	Disabled         bool
	CustomClaims     string `gorm:"type:text"`
	TokensValidAfter time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Account) TableName() string {
	return "identity_accounts"
}

// LocalConfig tunes the emulator.
type LocalConfig struct {
	Secret         string
	TokenTTL       time.Duration
	PublicBaseURL  string
	SignInInterval time.Duration
	SignInBurst    int
}

// LocalProvider is a self-hosted stand-in for the managed identity provider:
// bcrypt password hashes in a SQL table and HS256 id tokens.
type LocalProvider struct {
	db        *gorm.DB
	jwtSecret []byte
	tokenTTL  time.Duration
	baseURL   string
	logger    *zap.Logger

	limiterMu  sync.Mutex
	limiters    map[string]*rate.Limiter
	limitEvery  rate.Limit
	limitBurst  int
	maxLimiters int
}

// maxSignInLimiters bounds the per-email limiter map.
const maxSignInLimiters = 10000

// NewLocalProvider migrates the accounts table and returns the emulator.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig, logger *zap.Logger) (*LocalProvider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("local identity provider needs a signing secret")
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("failed to migrate identity accounts: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.SignInBurst < 1 {
		cfg.SignInBurst = 1
	}
	limit := rate.Inf
	if cfg.SignInInterval > 0 {
		limit = rate.Every(cfg.SignInInterval)
	}
	return &LocalProvider{
		db:         db,
		jwtSecret:  []byte(cfg.Secret),
		tokenTTL:   cfg.TokenTTL,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:     logger,
		limiters:    make(map[string]*rate.Limiter),
		limitEvery:  limit,
		limitBurst:  cfg.SignInBurst,
		maxLimiters: maxSignInLimiters,
	}, nil
}

func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if _, err := p.accountByEmail(ctx, email); err == nil {
		return "", fmt.Errorf("%w: %s", ErrEmailExists, email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := p.db.WithContext(ctx).Create(account).Error; err != nil {
		return "", fmt.Errorf("failed to create account: %w", err)
	}
	return account.UID, nil
}

func (p *LocalProvider) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	account, err := p.account(ctx, uid)
	if err != nil {
		return nil, err
	}
	claims, err := decodeClaims(account.CustomClaims)
	if err != nil {
		return nil, err
	}
	return &UserRecord{
		UID:           account.UID,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		Disabled:      account.Disabled,
		CustomClaims:  claims,
	}, nil
}

func (p *LocalProvider) DeleteUser(ctx context.Context, uid string) error {
	res := p.db.WithContext(ctx).Delete(&Account{}, "uid = ?", uid)
	if res.Error != nil {
		return fmt.Errorf("failed to delete account %s: %w", uid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return p.update(ctx, uid, map[string]interface{}{"password_hash": string(hash)})
}

func (p *LocalProvider) SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to encode custom claims: %w", err)
	}
	return p.update(ctx, uid, map[string]interface{}{"custom_claims": string(raw)})
}

// RevokeRefreshTokens invalidates every id token issued so far.
func (p *LocalProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	return p.update(ctx, uid, map[string]interface{}{"tokens_valid_after": time.Now()})
}

func (p *LocalProvider) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	claims, err := p.parse(idToken, purposeIDToken)
	if err != nil {
		return nil, err
	}
	uid, _ := claims["sub"].(string)
	account, err := p.account(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
		}
		return nil, err
	}
	if account.Disabled {
		return nil, fmt.Errorf("%w: account disabled", ErrInvalidToken)
	}
	issued, _ := claims["issued_us"].(float64)
	if !account.TokensValidAfter.IsZero() && int64(issued) <= account.TokensValidAfter.UnixMicro() {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}

	out := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return &Token{UID: uid, Claims: out}, nil
}

// EmailVerificationLink returns a link served by the emulator's verify-email route.
func (p *LocalProvider) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	account, err := p.accountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	now := time.Now()
	code, err := p.sign(jwt.MapClaims{
		"purpose": purposeVerifyEmail,
		"sub":     account.UID,
		"email":   account.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(verificationLinkTTL).Unix(),
	})
	if err != nil {
		return "", err
	}
	return p.baseURL + VerifyEmailPath + "?oobCode=" + url.QueryEscape(code), nil
}

// VerifyEmail applies a verification code produced by EmailVerificationLink.
func (p *LocalProvider) VerifyEmail(ctx context.Context, oobCode string) error {
	claims, err := p.parse(oobCode, purposeVerifyEmail)
	if err != nil {
		return err
	}
	uid, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)

	res := p.db.WithContext(ctx).Model(&Account{}).
		Where("uid = ? AND email = ?", uid, email).
		Update("email_verified", true)
	if res.Error != nil {
		return fmt.Errorf("failed to verify email of %s: %w", uid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return nil
}

// SignInResult is a successful emulated password exchange.
type SignInResult struct {
	IDToken   string
	LocalID   string
	Email     string
	ExpiresIn time.Duration
}

// SignIn mirrors the identity toolkit exchange, including its error bodies,
// so callers classify emulator and vendor failures alike.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = normalizeEmail(email)
	if !p.allow(email) {
		return nil, newSignInError(http.StatusBadRequest, CodeTooManyAttempts)
	}

	account, err := p.accountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, newSignInError(http.StatusBadRequest, CodeInvalidCredentials)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, newSignInError(http.StatusBadRequest, CodeInvalidCredentials)
	}
	if account.Disabled {
		return nil, newSignInError(http.StatusBadRequest, CodeUserDisabled)
	}

	token, err := p.issueIDToken(account)
	if err != nil {
		return nil, err
	}
	return &SignInResult{
		IDToken:   token,
		LocalID:   account.UID,
		Email:     account.Email,
		ExpiresIn: p.tokenTTL,
	}, nil
}

// SignInWithPassword implements SignInClient without an HTTP round trip.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	result, err := p.SignIn(ctx, email, password)
	if err != nil {
		return "", err
	}
	return result.IDToken, nil
}

func (p *LocalProvider) issueIDToken(account *Account) (string, error) {
	custom, err := decodeClaims(account.CustomClaims)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range custom {
		claims[k] = v
	}
	claims["purpose"] = purposeIDToken
	claims["sub"] = account.UID
	claims["user_id"] = account.UID
	claims["email"] = account.Email
	claims["email_verified"] = account.EmailVerified
	claims["auth_time"] = now.Unix()
	claims["iat"] = now.Unix()
	claims["issued_us"] = now.UnixMicro()
	claims["exp"] = now.Add(p.tokenTTL).Unix()
	return p.sign(claims)
}

func (p *LocalProvider) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (p *LocalProvider) parse(tokenString, purpose string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if got, _ := claims["purpose"].(string); got != purpose {
		return nil, fmt.Errorf("%w: wrong token purpose", ErrInvalidToken)
	}
	return claims, nil
}

func (p *LocalProvider) allow(email string) bool {
	if p.limitEvery == rate.Inf {
		return true
	}

	p.limiterMu.Lock()
	defer p.limiterMu.Unlock()

	limiter, ok := p.limiters[email]
	if !ok {
		if len(p.limiters) >= p.maxLimiters {
			p.evictLimiters()
		}
		limiter = rate.NewLimiter(p.limitEvery, p.limitBurst)
		p.limiters[email] = limiter
	}
	return limiter.Allow()
}

// evictLimiters drops limiters whose bucket has refilled, since a new one
// behaves the same. When every entry is still throttled one is dropped anyway.
func (p *LocalProvider) evictLimiters() {
	for email, limiter := range p.limiters {
		if limiter.Tokens() >= float64(p.limitBurst) {
			delete(p.limiters, email)
		}
	}
	if len(p.limiters) < p.maxLimiters {
		return
	}
	for email := range p.limiters {
		delete(p.limiters, email)
		return
	}
}

func (p *LocalProvider) account(ctx context.Context, uid string) (*Account, error) {
	var account Account
	if err := p.db.WithContext(ctx).First(&account, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", uid, err)
	}
	return &account, nil
}

func (p *LocalProvider) accountByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	if err := p.db.WithContext(ctx).First(&account, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to get account by email %s: %w", email, err)
	}
	return &account, nil
}

func (p *LocalProvider) update(ctx context.Context, uid string, fields map[string]interface{}) error {
	res := p.db.WithContext(ctx).Model(&Account{}).Where("uid = ?", uid).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update account %s: %w", uid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, uid)
	}
	return nil
}

func decodeClaims(raw string) (map[string]interface{}, error) {
	claims := map[string]interface{}{}
	if raw == "" {
		return claims, nil
	}
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return nil, fmt.Errorf("failed to decode custom claims: %w", err)
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Identity backends.
const (
	IdentityFirebase = "firebase"
	IdentityLocal    = "local"
)

// Profile store drivers.
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreSQLite    = "sqlite"
	StoreMemory    = "memory"
)

// Config holds every runtime setting of the service.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	IdentityBackend         string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirebaseAPIKey          string
	IdentityToolkitURL      string

	StoreDriver    string
	DatabaseDSN    string
	UserCollection string

	LocalJWTSecret   string
	LocalTokenTTL    time.Duration
	LocalSignInRate  time.Duration
	LocalSignInBurst int
	PublicBaseURL    string

	SendGridAPIKey  string
	EmailSender     string
	EmailSenderName string

	RabbitMQURL string
	EmailQueue  string

	HTTPTimeout time.Duration
	SentryDSN   string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("IDENTITY_BACKEND", IdentityFirebase)
	v.SetDefault("IDENTITY_TOOLKIT_URL", "https://identitytoolkit.googleapis.com")

	v.SetDefault("STORE_DRIVER", StoreFirestore)
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("USER_COLLECTION", "user")

	v.SetDefault("LOCAL_TOKEN_TTL", time.Hour)
	v.SetDefault("LOCAL_SIGNIN_RATE", 12*time.Second)
	v.SetDefault("LOCAL_SIGNIN_BURST", 5)
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("EMAIL_SENDER", "no-reply@matchmage.app")
	v.SetDefault("EMAIL_SENDER_NAME", "MatchMage")

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("EMAIL_QUEUE", "verification_email_queue")

	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)
}

// Load reads an optional .env file, then environment variables through viper.
func Load() (*Config, error) {
	// A missing .env is fine; the environment is the source of truth.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		AppPort:  v.GetString("APP_PORT"),
		AppEnv:   v.GetString("APP_ENV"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		IdentityBackend:         strings.ToLower(v.GetString("IDENTITY_BACKEND")),
		FirebaseProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
		FirebaseAPIKey:          v.GetString("FIREBASE_API_KEY"),
		IdentityToolkitURL:      strings.TrimRight(v.GetString("IDENTITY_TOOLKIT_URL"), "/"),

		StoreDriver:    strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),
		UserCollection: v.GetString("USER_COLLECTION"),

		LocalJWTSecret:   v.GetString("LOCAL_JWT_SECRET"),
		LocalTokenTTL:    v.GetDuration("LOCAL_TOKEN_TTL"),
		LocalSignInRate:  v.GetDuration("LOCAL_SIGNIN_RATE"),
		LocalSignInBurst: v.GetInt("LOCAL_SIGNIN_BURST"),
		PublicBaseURL:    strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),

		SendGridAPIKey:  v.GetString("SENDGRID_API_KEY"),
		EmailSender:     v.GetString("EMAIL_SENDER"),
		EmailSenderName: v.GetString("EMAIL_SENDER_NAME"),

		RabbitMQURL: v.GetString("RABBITMQ_URL"),
		EmailQueue:  v.GetString("EMAIL_QUEUE"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),
		SentryDSN:   v.GetString("SENTRY_DSN"),
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.IdentityBackend {
	case IdentityFirebase:
		if c.FirebaseAPIKey == "" {
			errs = append(errs, errors.New("FIREBASE_API_KEY is required for the firebase identity backend"))
		}
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firebase identity backend"))
		}
	case IdentityLocal:
		if c.LocalJWTSecret == "" {
			errs = append(errs, errors.New("LOCAL_JWT_SECRET is required for the local identity backend"))
		}
		if c.StoreDriver == StoreFirestore {
			errs = append(errs, errors.New("the local identity backend needs a gorm or memory profile store"))
		}
		if c.LocalSignInBurst < 1 {
			errs = append(errs, errors.New("LOCAL_SIGNIN_BURST must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_BACKEND %q", c.IdentityBackend))
	}

	switch c.StoreDriver {
	case StoreFirestore:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore store"))
		}
	case StorePostgres, StoreSQLite:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_DSN is required for the %s store", c.StoreDriver))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.UserCollection == "" {
		errs = append(errs, errors.New("USER_COLLECTION must not be empty"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// UsesGORM reports whether the profile store (and local accounts) live in a SQL database.
func (c *Config) UsesGORM() bool {
	return c.StoreDriver == StorePostgres || c.StoreDriver == StoreSQLite
}

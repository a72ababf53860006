package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/config"
	"github.com/petercegoh/cs203-MatchMage/internal/identity"
	"github.com/petercegoh/cs203-MatchMage/internal/logger"
	"github.com/petercegoh/cs203-MatchMage/internal/repositories"
	"github.com/petercegoh/cs203-MatchMage/internal/server"
	"github.com/petercegoh/cs203-MatchMage/internal/services"
	"github.com/petercegoh/cs203-MatchMage/pkg/mailer"
	"github.com/petercegoh/cs203-MatchMage/pkg/rabbitmq"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	// --- Sentry ---
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			log.Error("sentry init failed", zap.Error(err))
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	application, err := newApplication(context.Background(), cfg, log, sentryEnabled)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// --- Start HTTP Server ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.AppPort),
			zap.String("identity", cfg.IdentityBackend),
			zap.String("store", cfg.StoreDriver))
		if err := application.app.Listen(cfg.AppPort); err != nil {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	log.Info("shutting down server")

	if err := application.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("error during fiber shutdown", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}

// application is the wired service plus whatever must be closed on exit.
type application struct {
	app     *fiber.App
	closers []func() error
	log     *zap.Logger
}

// Close releases the connections opened by newApplication, last opened first.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("error during shutdown", zap.Error(err))
		}
	}
}

// newApplication selects the identity backend, profile store and mailer from
// cfg and assembles the HTTP app.
func newApplication(ctx context.Context, cfg *config.Config, log *zap.Logger, sentryEnabled bool) (*application, error) {
	a := &application{log: log}
	fail := func(err error) (*application, error) {
		a.Close()
		return nil, err
	}

	// --- Database ---
	var db *gorm.DB
	if cfg.UsesGORM() || cfg.IdentityBackend == config.IdentityLocal {
		var err error
		db, err = openDatabase(cfg)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}

	// --- Firebase ---
	var fbApp *firebase.App
	if cfg.IdentityBackend == config.IdentityFirebase || cfg.StoreDriver == config.StoreFirestore {
		var opts []option.ClientOption
		if cfg.FirebaseCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		}
		var err error
		fbApp, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize firebase app: %w", err))
		}
	}

	// --- Identity provider ---
	var (
		idp      identity.Provider
		signIn   identity.SignInClient
		emulator *identity.LocalProvider
	)
	switch cfg.IdentityBackend {
	case config.IdentityFirebase:
		authClient, err := fbApp.Auth(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize firebase auth: %w", err))
		}
		idp = identity.NewFirebaseProvider(authClient, log.Named("identity"))
		signIn = identity.NewRESTSignInClient(cfg.IdentityToolkitURL, cfg.FirebaseAPIKey, cfg.HTTPTimeout)
		log.Info("using firebase identity",
			zap.String("project", cfg.FirebaseProjectID),
			zap.String("api_key", logger.MaskSecret(cfg.FirebaseAPIKey)))
	case config.IdentityLocal:
		local, err := identity.NewLocalProvider(db, identity.LocalConfig{
			Secret:         cfg.LocalJWTSecret,
			TokenTTL:       cfg.LocalTokenTTL,
			PublicBaseURL:  cfg.PublicBaseURL,
			SignInInterval: cfg.LocalSignInRate,
			SignInBurst:    cfg.LocalSignInBurst,
		}, log.Named("identity"))
		if err != nil {
			return fail(err)
		}
		idp, signIn, emulator = local, local, local
		log.Warn("using local identity emulator; do not use in production")
	default:
		return fail(fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend))
	}

	// --- Profile store ---
	var users repositories.UserRepository
	switch cfg.StoreDriver {
	case config.StoreFirestore:
		fsClient, err := fbApp.Firestore(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize firestore: %w", err))
		}
		a.closers = append(a.closers, fsClient.Close)
		users = repositories.NewFirestoreUserRepository(fsClient, cfg.UserCollection)
	case config.StorePostgres, config.StoreSQLite:
		repo := repositories.NewGORMUserRepository(db)
		if err := repo.Migrate(); err != nil {
			return fail(err)
		}
		users = repo
	case config.StoreMemory:
		users = repositories.NewMockUserRepository()
	default:
		return fail(fmt.Errorf("unknown store driver %q", cfg.StoreDriver))
	}

	// --- Mailer ---
	var delivery mailer.Mailer
	if cfg.SendGridAPIKey != "" {
		delivery = mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailSender, cfg.EmailSenderName, log.Named("mailer"))
	} else {
		log.Warn("SENDGRID_API_KEY not set, verification links are only logged")
		delivery = mailer.NewLogMailer(log.Named("mailer"))
	}

	outbox := delivery
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Queue: cfg.EmailQueue}, log.Named("rabbitmq"))
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, mqClient.Close)
		if err := mqClient.ConsumeVerificationEmails(rabbitmq.HandleVerificationEmail(delivery, cfg.HTTPTimeout, log.Named("rabbitmq"))); err != nil {
			return fail(err)
		}
		outbox = mqClient
	}

	// --- Services and HTTP ---
	userService := services.NewUserService(idp, signIn, users, outbox, log.Named("users"))
	a.app = server.New(server.Options{
		UserService: userService,
		Emulator:    emulator,
		Logger:      log.Named("http"),
		Sentry:      sentryEnabled,
		AccessLog:   cfg.AppEnv != "test",
	})
	return a, nil
}

// openDatabase opens the SQL database of the gorm store, or a private
// in-memory SQLite database for local accounts when profiles live elsewhere.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	case config.StoreSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = sqlite.Open("file::memory:")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if !cfg.UsesGORM() {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		// Every pooled connection would see a different in-memory database.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

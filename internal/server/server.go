package server

import (
	"errors"

	"github.com/petercegoh/cs203-MatchMage/internal/handlers"
	"github.com/petercegoh/cs203-MatchMage/internal/identity"
	"github.com/petercegoh/cs203-MatchMage/internal/middleware"
	"github.com/petercegoh/cs203-MatchMage/internal/services"

	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

// Options wires the HTTP server.
type Options struct {
	UserService *services.UserService
	// Emulator, when set, also serves the identity toolkit emulator routes.
	Emulator *identity.LocalProvider
	Logger   *zap.Logger
	// Sentry enables the Sentry middleware; sentry.Init must already have run.
	Sentry bool
	// AccessLog enables the per-request access log.
	AccessLog bool
}

// New builds the Fiber app with middleware and every route mounted.
func New(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "matchmage-users",
		ErrorHandler: errorHandler(opts.Logger),
	})

	if opts.Sentry {
		app.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authRequired := middleware.AuthRequired(opts.UserService, opts.Logger)
	apiV1 := app.Group("/api/v1")
	handlers.NewUserHandler(opts.UserService, opts.Logger).
		RegisterRoutes(apiV1, authRequired, middleware.AdminRequired())

	if opts.Emulator != nil {
		handlers.NewIdentityEmulatorHandler(opts.Emulator, opts.Logger).RegisterRoutes(app)
	}

	return app
}

// errorHandler only exposes details of client errors.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := handlers.MsgInternal
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("unhandled server error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			message = handlers.MsgInternal
		}

		return c.Status(code).JSON(fiber.Map{
			"message": message,
		})
	}
}

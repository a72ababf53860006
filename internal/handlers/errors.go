package handlers

import (
	"errors"

	"github.com/petercegoh/cs203-MatchMage/internal/services"
	"github.com/petercegoh/cs203-MatchMage/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Public texts for service failures.
const (
	MsgEmailExists        = "Email is already registered."
	MsgInvalidToken       = "Invalid or expired token"
	MsgInvalidBearer      = "Authorization header format must be 'Bearer <token>'"
	MsgInvalidCredentials = "Email or password is incorrect."
	MsgEmailNotVerified   = "Please verify your account via your email to continue."
	MsgTooManyRequests    = "Too many requests detected. Please try again later."
	MsgUserNotFound       = "User not found."
	MsgUpstream           = "Identity provider is unavailable. Please try again later."
	MsgPartialDelete      = "Account deleted, but the profile could not be removed."
	MsgInternal           = "Internal server error"
)

// StatusFor maps a service error to an HTTP status and a message safe to show.
func StatusFor(err error) (int, string) {
	var (
		validationErr *services.ValidationError
		accessErr     *services.AccessDeniedError
		upstreamErr   *services.UpstreamError
		partialErr    *services.PartialDeleteError
	)
	switch {
	case errors.Is(err, services.ErrUsernameTaken):
		return fiber.StatusConflict, services.ErrUsernameTaken.Message
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, validationErr.Message
	case errors.Is(err, services.ErrEmailExists):
		return fiber.StatusConflict, MsgEmailExists
	case errors.Is(err, services.ErrInvalidBearerToken):
		return fiber.StatusUnauthorized, MsgInvalidBearer
	case errors.Is(err, services.ErrInvalidToken):
		return fiber.StatusUnauthorized, MsgInvalidToken
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, MsgInvalidCredentials
	case errors.Is(err, services.ErrEmailNotVerified):
		return fiber.StatusForbidden, MsgEmailNotVerified
	case errors.As(err, &accessErr):
		return fiber.StatusForbidden, accessErr.Message
	case errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound, MsgUserNotFound
	case errors.Is(err, services.ErrTooManyRequests):
		return fiber.StatusTooManyRequests, MsgTooManyRequests
	case errors.As(err, &upstreamErr):
		return fiber.StatusBadGateway, MsgUpstream
	case errors.As(err, &partialErr):
		return fiber.StatusInternalServerError, MsgPartialDelete
	default:
		return fiber.StatusInternalServerError, MsgInternal
	}
}

func respondError(c *fiber.Ctx, logger *zap.Logger, message string, err error) error {
	status, public := StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(message,
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	} else {
		logger.Debug(message, zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   public,
	})
}

// fieldErrors runs the struct validator and returns one message per failed
// field, or nil when the body is valid.
func fieldErrors(v *validator.Validate, body interface{}) map[string]string {
	err := v.Struct(body)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"body": err.Error()}
	}
	errorMessages := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		errorMessages[e.Field()] = validation.Message(e.Field(), e.Tag())
	}
	return errorMessages
}

func validationFailed(c *fiber.Ctx, errs map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errs,
	})
}

func invalidBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

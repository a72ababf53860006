package middleware

import (
	"errors"

	"github.com/petercegoh/cs203-MatchMage/internal/identity"
	"github.com/petercegoh/cs203-MatchMage/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Keys of the verified caller in fiber.Ctx locals.
const (
	LocalsUID   = "uid"
	LocalsToken = "token"
)

// AuthRequired is a Fiber middleware that verifies the bearer id token and
// stores the caller's uid and token for subsequent handlers.
func AuthRequired(userService *services.UserService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		token, err := userService.DecodeBearerToken(c.UserContext(), authHeader)
		if err != nil {
			if errors.Is(err, services.ErrInvalidBearerToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"message": "Authorization header format must be 'Bearer <token>'",
				})
			}
			if !errors.Is(err, services.ErrInvalidToken) {
				logger.Warn("id token verification failed", zap.Error(err))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		c.Locals(LocalsUID, token.UID)
		c.Locals(LocalsToken, token)
		return c.Next()
	}
}

// AdminRequired rejects callers whose token lacks the admin claim. It must
// run after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := Token(c)
		if token == nil || !token.Admin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Admin authority required",
			})
		}
		return c.Next()
	}
}

// UID returns the verified caller's uid, or "" outside AuthRequired.
func UID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalsUID).(string)
	return uid
}

// Token returns the verified caller's token, or nil outside AuthRequired.
func Token(c *fiber.Ctx) *identity.Token {
	token, _ := c.Locals(LocalsToken).(*identity.Token)
	return token
}

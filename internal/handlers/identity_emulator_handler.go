package handlers

import (
	"errors"
	"strconv"

	"github.com/petercegoh/cs203-MatchMage/internal/identity"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// IdentityEmulatorHandler serves the identity toolkit endpoints backed by the
// local provider: the password exchange and the email verification link.
type IdentityEmulatorHandler struct {
	provider *identity.LocalProvider
	logger   *zap.Logger
}

// NewIdentityEmulatorHandler creates a new IdentityEmulatorHandler.
func NewIdentityEmulatorHandler(provider *identity.LocalProvider, logger *zap.Logger) *IdentityEmulatorHandler {
	return &IdentityEmulatorHandler{
		provider: provider,
		logger:   logger,
	}
}

// RegisterRoutes mounts the emulator on the root router.
func (h *IdentityEmulatorHandler) RegisterRoutes(router fiber.Router) {
	router.Post(identity.EmulatorMount+`/v1/accounts\:signInWithPassword`, h.HandleSignIn)
	router.Get(identity.VerifyEmailPath, h.HandleVerifyEmail)
}

type signInWithPasswordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// HandleSignIn answers like the toolkit: an idToken on success, an
// {"error":{"code","message"}} body otherwise.
func (h *IdentityEmulatorHandler) HandleSignIn(c *fiber.Ctx) error {
	var req signInWithPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return toolkitError(c, fiber.StatusBadRequest, "INVALID_JSON_PAYLOAD")
	}
	if req.Email == "" {
		return toolkitError(c, fiber.StatusBadRequest, "INVALID_EMAIL")
	}
	if req.Password == "" {
		return toolkitError(c, fiber.StatusBadRequest, "MISSING_PASSWORD")
	}

	result, err := h.provider.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		var signInErr *identity.SignInError
		if errors.As(err, &signInErr) {
			return toolkitError(c, signInErr.StatusCode, signInErr.Code)
		}
		h.logger.Error("emulated sign-in failed", zap.Error(err))
		return toolkitError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR")
	}

	return c.JSON(fiber.Map{
		"kind":       "identitytoolkit#VerifyPasswordResponse",
		"localId":    result.LocalID,
		"email":      result.Email,
		"idToken":    result.IDToken,
		"registered": true,
		"expiresIn":  strconv.Itoa(int(result.ExpiresIn.Seconds())),
	})
}

// HandleVerifyEmail applies the oobCode of a verification link.
func (h *IdentityEmulatorHandler) HandleVerifyEmail(c *fiber.Ctx) error {
	oobCode := c.Query("oobCode")
	if oobCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Verification failed",
			"error":   "oobCode is required",
		})
	}

	if err := h.provider.VerifyEmail(c.UserContext(), oobCode); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidToken):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Verification failed",
				"error":   "The verification link is invalid or has expired.",
			})
		case errors.Is(err, identity.ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Verification failed",
				"error":   MsgUserNotFound,
			})
		}
		h.logger.Error("email verification failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Verification failed",
			"error":   MsgInternal,
		})
	}

	return c.JSON(fiber.Map{"message": "Email verified. You can now sign in."})
}

func toolkitError(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    status,
			"message": code,
		},
	})
}

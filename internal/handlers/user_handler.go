package handlers

import (
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/middleware"
	"github.com/petercegoh/cs203-MatchMage/internal/models"
	"github.com/petercegoh/cs203-MatchMage/internal/services"
	"github.com/petercegoh/cs203-MatchMage/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserHandler handles HTTP requests for accounts and player profiles.
type UserHandler struct {
	userService *services.UserService
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		validate:    validation.New(),
		logger:      logger,
	}
}

// RegisterRoutes registers the user, player and admin routes. authRequired
// guards every route acting on the caller; adminRequired additionally
// guards the admin group.
func (h *UserHandler) RegisterRoutes(router fiber.Router, authRequired, adminRequired fiber.Handler) {
	userRoutes := router.Group("/users")
	userRoutes.Post("/register", h.HandleRegister)
	userRoutes.Post("/login", h.HandleLogin)
	userRoutes.Post("/profile", authRequired, h.HandleCreateProfile)
	userRoutes.Get("/me", authRequired, h.HandleGetProfile)
	userRoutes.Put("/me", authRequired, h.HandleUpdateProfile)
	userRoutes.Delete("/me", authRequired, h.HandleDeleteAccount)
	userRoutes.Get("/me/email", authRequired, h.HandleGetEmail)
	userRoutes.Put("/me/password", authRequired, h.HandleUpdatePassword)
	userRoutes.Post("/me/verification-email", authRequired, h.HandleSendVerificationEmail)
	userRoutes.Post("/logout", authRequired, h.HandleLogout)

	router.Get("/players/:userName", authRequired, h.HandleGetPlayer)

	adminRoutes := router.Group("/admin", authRequired, adminRequired)
	adminRoutes.Get("/users", h.HandleListUsers)
	adminRoutes.Post("/users/:uid/admin", h.HandleGrantAdmin)
}

// HandleRegister creates an account and sends its verification email.
func (h *UserHandler) HandleRegister(c *fiber.Ctx) error {
	var req models.Register
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if errs := fieldErrors(h.validate, req); errs != nil {
		return validationFailed(c, errs)
	}

	registration, err := h.userService.CreateUser(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, "Registration failed", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "User registered successfully",
		"registration": registration,
	})
}

// HandleLogin exchanges credentials for an id token.
func (h *UserHandler) HandleLogin(c *fiber.Ctx) error {
	var req models.Login
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if errs := fieldErrors(h.validate, req); errs != nil {
		return validationFailed(c, errs)
	}

	token, err := h.userService.Login(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, "Authentication failed", err)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
	})
}

// HandleCreateProfile writes the caller's profile.
func (h *UserHandler) HandleCreateProfile(c *fiber.Ctx) error {
	var user models.User
	if err := c.BodyParser(&user); err != nil {
		return invalidBody(c, err)
	}
	if errs := fieldErrors(h.validate, user); errs != nil {
		return validationFailed(c, errs)
	}

	uid := middleware.UID(c)
	if err := h.userService.CreateUserDetails(c.UserContext(), user, uid); err != nil {
		return respondError(c, h.logger, "Could not create profile", err)
	}

	user.ID = uid
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Profile created successfully",
		"user":    user,
	})
}

func (h *UserHandler) HandleGetProfile(c *fiber.Ctx) error {
	user, err := h.userService.GetUser(c.UserContext(), middleware.UID(c))
	if err != nil {
		return respondError(c, h.logger, "Could not get profile", err)
	}
	return c.JSON(user)
}

// HandleUpdateProfile rewrites the caller's existing profile.
func (h *UserHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	var user models.User
	if err := c.BodyParser(&user); err != nil {
		return invalidBody(c, err)
	}
	if errs := fieldErrors(h.validate, user); errs != nil {
		return validationFailed(c, errs)
	}

	updated, err := h.userService.UpdateUser(c.UserContext(), user, middleware.UID(c))
	if err != nil {
		return respondError(c, h.logger, "Could not update profile", err)
	}

	return c.JSON(fiber.Map{
		"message":    "Profile updated successfully",
		"updateTime": updated.UTC().Format(time.RFC3339Nano),
	})
}

func (h *UserHandler) HandleGetEmail(c *fiber.Ctx) error {
	email, err := h.userService.GetUserEmail(c.UserContext(), middleware.UID(c))
	if err != nil {
		return respondError(c, h.logger, "Could not get email", err)
	}
	return c.JSON(fiber.Map{"email": email})
}

func (h *UserHandler) HandleUpdatePassword(c *fiber.Ctx) error {
	var req models.PasswordUpdate
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if errs := fieldErrors(h.validate, req); errs != nil {
		return validationFailed(c, errs)
	}

	if err := h.userService.UpdatePassword(c.UserContext(), req.Password, middleware.UID(c)); err != nil {
		return respondError(c, h.logger, "Could not update password", err)
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

func (h *UserHandler) HandleSendVerificationEmail(c *fiber.Ctx) error {
	if err := h.userService.SendVerificationEmail(c.UserContext(), middleware.UID(c)); err != nil {
		return respondError(c, h.logger, "Could not send verification email", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Verification email sent"})
}

// HandleLogout revokes the caller's refresh tokens.
func (h *UserHandler) HandleLogout(c *fiber.Ctx) error {
	if err := h.userService.LogoutUser(c.UserContext(), middleware.UID(c)); err != nil {
		return respondError(c, h.logger, "Logout failed", err)
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// HandleDeleteAccount removes the caller's account and profile.
func (h *UserHandler) HandleDeleteAccount(c *fiber.Ctx) error {
	if err := h.userService.DeleteUser(c.UserContext(), middleware.UID(c)); err != nil {
		return respondError(c, h.logger, "Could not delete account", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGetPlayer looks a profile up by its exact username.
func (h *UserHandler) HandleGetPlayer(c *fiber.Ctx) error {
	player, err := h.userService.GetPlayer(c.UserContext(), c.Params("userName"))
	if err != nil {
		return respondError(c, h.logger, "Could not get player", err)
	}
	return c.JSON(player)
}

func (h *UserHandler) HandleListUsers(c *fiber.Ctx) error {
	users, err := h.userService.GetAllUsers(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "Could not list users", err)
	}
	return c.JSON(users)
}

// HandleGrantAdmin gives the admin claim to another account. The change is
// visible in that account's next id token.
func (h *UserHandler) HandleGrantAdmin(c *fiber.Ctx) error {
	uid := c.Params("uid")
	if err := h.userService.SetAdminAuthority(c.UserContext(), uid); err != nil {
		return respondError(c, h.logger, "Could not grant admin authority", err)
	}
	h.logger.Info("admin authority granted", zap.String("uid", uid), zap.String("by", middleware.UID(c)))
	return c.JSON(fiber.Map{"message": "Admin authority granted"})
}

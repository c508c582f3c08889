package user

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const currentUserKey = "currentUser"

type Handler struct {
	service *Service
	log     zerolog.Logger
}

func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// SetCurrentUser attaches the authenticated user to the request.
func SetCurrentUser(c *fiber.Ctx, user *User) {
	c.Locals(currentUserKey, user)
}

func CurrentUser(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(currentUserKey).(*User)
	return user, ok && user != nil
}

func (h *Handler) RegisterPublicRoutes(router fiber.Router) {
	auth := router.Group("/api/auth")
	auth.Post("/register", h.register)
	auth.Post("/login", h.login)
}

// RegisterProtectedRoutes mounts /api/users with authenticate in front of
// every route.
func (h *Handler) RegisterProtectedRoutes(router fiber.Router, authenticate fiber.Handler) {
	users := router.Group("/api/users")
	users.Get("/", authenticate, h.getUsers)
	users.Get("/:id", authenticate, h.getUser)
	users.Put("/:id", authenticate, h.updateUser)
	users.Delete("/:id", authenticate, h.deleteUser)
}

func (h *Handler) register(c *fiber.Ctx) error {
	var payload registerRequest
	if err := decodeBody(c, &payload); err != nil {
		return invalidBody(c)
	}
	if errs := payload.check(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": errs})
	}

	created, token, err := h.service.Register(c.UserContext(), payload.input())
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User already exists with this email"})
		}
		h.log.Error().Err(err).Msg("register error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error during registration"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    created,
		"token":   token,
	})
}

func (h *Handler) login(c *fiber.Ctx) error {
	var payload loginRequest
	if err := decodeBody(c, &payload); err != nil {
		return invalidBody(c)
	}
	if errs := payload.check(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": errs})
	}

	user, token, err := h.service.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
		}
		h.log.Error().Err(err).Msg("login error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error during login"})
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"user":    sanitizeUser(*user),
		"token":   token,
	})
}

func (h *Handler) getUsers(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("get users error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error while fetching users"})
	}

	return c.JSON(fiber.Map{
		"message": "Users retrieved successfully",
		"count":   len(users),
		"users":   users,
	})
}

func (h *Handler) getUser(c *fiber.Ctx) error {
	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return userNotFound(c)
	}

	user, err := h.service.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound(c)
		}
		h.log.Error().Err(err).Int("user_id", userID).Msg("get user error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error while fetching user"})
	}

	return c.JSON(fiber.Map{
		"message": "User retrieved successfully",
		"user":    user,
	})
}

func (h *Handler) updateUser(c *fiber.Ctx) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	// a non-numeric id can never be the caller's own
	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil || userID != actor.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only update your own profile"})
	}

	var payload updateRequest
	if err := decodeBody(c, &payload); err != nil {
		return invalidBody(c)
	}
	input, errs := payload.check()
	if len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": errs})
	}

	updated, err := h.service.Update(c.UserContext(), actor.ID, userID, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only update your own profile"})
		case errors.Is(err, ErrNotFound):
			return userNotFound(c)
		case errors.Is(err, ErrEmailInUse):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email already in use"})
		case errors.Is(err, ErrNoChanges):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No fields to update"})
		}
		h.log.Error().Err(err).Int("user_id", userID).Msg("update user error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error while updating user"})
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    updated,
	})
}

func (h *Handler) deleteUser(c *fiber.Ctx) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil || userID != actor.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only delete your own profile"})
	}

	deleted, err := h.service.Delete(c.UserContext(), actor.ID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You can only delete your own profile"})
		case errors.Is(err, ErrNotFound):
			return userNotFound(c)
		}
		h.log.Error().Err(err).Int("user_id", userID).Msg("delete user error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error while deleting user"})
	}

	return c.JSON(fiber.Map{
		"message": "User deleted successfully",
		"deletedUser": fiber.Map{
			"id":    deleted.ID,
			"email": deleted.Email,
		},
	})
}

// decodeBody treats an empty body as an empty object.
func decodeBody(c *fiber.Ctx, out any) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil
	}
	return c.App().Config().JSONDecoder(body, out)
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}

func userNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "Unauthorized",
		"message": "Invalid or expired token",
	})
}

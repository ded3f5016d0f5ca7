package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/signUp", func(c *fiber.Ctx) error {
		var req SignUpRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		user, err := svc.SignUp(c.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidUserID):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, ErrUserIDTaken):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	r.Post("/signIn", func(c *fiber.Ctx) error {
		var req SignInRequest
		if err := c.BodyParser(&req); err != nil || req.ID == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "id and password required")
		}
		resp, err := svc.SignIn(c.Context(), req)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(resp)
	})
}

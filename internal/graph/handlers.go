package graph

import (
	"errors"

	"github.com/KTachibanaM/pill-city/internal/auth"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/following/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Follow(c.Context(), auth.Actor(c), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Delete("/following/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Unfollow(c.Context(), auth.Actor(c), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Get("/followings", authMiddleware, func(c *fiber.Ctx) error {
		users, err := svc.Followings(c.Context(), auth.Actor(c))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(users)
	})

	r.Post("/circles", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil || req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		circle, err := svc.CreateCircle(c.Context(), auth.Actor(c), req.Name)
		if err != nil {
			return statusFor(err)
		}
		return c.Status(fiber.StatusCreated).JSON(circle)
	})

	r.Get("/circles", authMiddleware, func(c *fiber.Ctx) error {
		circles, err := svc.ListCircles(c.Context(), auth.Actor(c))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(circles)
	})

	r.Post("/circle/:circleID/membership/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.AddCircleMember(c.Context(), auth.Actor(c), c.Params("circleID"), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Delete("/circle/:circleID/membership/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.RemoveCircleMember(c.Context(), auth.Actor(c), c.Params("circleID"), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Post("/mutes/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Mute(c.Context(), auth.Actor(c), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Delete("/mutes/:userID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Unmute(c.Context(), auth.Actor(c), c.Params("userID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusOK)
	})
}

func statusFor(err error) *fiber.Error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

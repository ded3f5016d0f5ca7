package notification

import (
	"errors"

	"github.com/KTachibanaM/pill-city/internal/auth"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/notifications", authMiddleware, func(c *fiber.Ctx) error {
		notifications, err := svc.List(c.Context(), auth.Actor(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(notifications)
	})

	r.Post("/notification/:notificationID/read", authMiddleware, func(c *fiber.Ctx) error {
		err := svc.MarkRead(c.Context(), auth.Actor(c), c.Params("notificationID"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Post("/notifications/read", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.MarkAllRead(c.Context(), auth.Actor(c)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusOK)
	})
}

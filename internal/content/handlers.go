package content

import (
	"errors"

	"github.com/KTachibanaM/pill-city/internal/auth"
	"github.com/KTachibanaM/pill-city/internal/graph"
	"github.com/KTachibanaM/pill-city/internal/visibility"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/posts", authMiddleware, func(c *fiber.Ctx) error {
		var req CreatePostInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		post, err := svc.CreatePost(c.Context(), auth.Actor(c), req)
		if err != nil {
			return statusFor(err)
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	r.Get("/post/:postID", authMiddleware, func(c *fiber.Ctx) error {
		post, err := svc.GetPost(c.Context(), auth.Actor(c), c.Params("postID"))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(post)
	})

	r.Get("/home", authMiddleware, func(c *fiber.Ctx) error {
		posts, err := svc.HomeFeed(c.Context(), auth.Actor(c))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(posts)
	})

	r.Get("/profile/:userID", authMiddleware, func(c *fiber.Ctx) error {
		posts, err := svc.ProfileFeed(c.Context(), auth.Actor(c), c.Params("userID"))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(posts)
	})

	r.Post("/post/:postID/comments", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateCommentInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		comment, err := svc.CreateComment(c.Context(), auth.Actor(c), c.Params("postID"), req)
		if err != nil {
			return statusFor(err)
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})

	r.Get("/post/:postID/comment/:commentID", authMiddleware, func(c *fiber.Ctx) error {
		comment, err := svc.FindComment(c.Context(), auth.Actor(c), c.Params("postID"), c.Params("commentID"))
		if err != nil {
			return statusFor(err)
		}
		return c.JSON(comment)
	})

	r.Delete("/post/:postID/comment/:commentID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeleteComment(c.Context(), auth.Actor(c), c.Params("postID"), c.Params("commentID")); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Post("/post/:postID/reactions", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Emoji string `json:"emoji"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := svc.React(c.Context(), auth.Actor(c), c.Params("postID"), req.Emoji); err != nil {
			return statusFor(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})
}

// statusFor keeps forbidden and not-found distinguishable at the boundary:
// an outsider probing a private post gets 403, never 404.
func statusFor(err error) *fiber.Error {
	switch {
	case errors.Is(err, visibility.ErrUnauthorized):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, graph.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

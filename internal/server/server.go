package server

import (
	"github.com/KTachibanaM/pill-city/internal/auth"
	"github.com/KTachibanaM/pill-city/internal/config"
	"github.com/KTachibanaM/pill-city/internal/content"
	"github.com/KTachibanaM/pill-city/internal/graph"
	"github.com/KTachibanaM/pill-city/internal/mention"
	"github.com/KTachibanaM/pill-city/internal/notification"
	"github.com/KTachibanaM/pill-city/internal/stream"
	"github.com/KTachibanaM/pill-city/internal/visibility"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	DB    *pgxpool.Pool
	Redis *redis.Client
	Hub   *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    db,
		Redis: redisClient,
		Hub:   stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	graphSvc := graph.NewService(s.DB, s.Redis)
	checker := visibility.NewChecker(s.DB, graphSvc)
	dispatcher := notification.NewService(s.DB)
	resolver := mention.NewResolver(graphSvc, dispatcher)
	contentSvc := content.NewService(s.DB, graphSvc, checker, dispatcher, resolver, s.Hub)

	api := s.App.Group("/api")
	auth.RegisterRoutes(api, auth.NewService(s.Cfg.JWTSecret, s.DB))
	graph.RegisterRoutes(api, graphSvc, jwtMiddleware)
	content.RegisterRoutes(api, contentSvc, jwtMiddleware)
	notification.RegisterRoutes(api, dispatcher, jwtMiddleware)
	stream.RegisterRoutes(s.App, s.Hub, jwtMiddleware)
}

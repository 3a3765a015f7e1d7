package http

import (
	"time"

	pojie "github.com/Pojie/pojie-go"
	"github.com/Pojie/pojie-go/internal/transport/http/handlers"
	httpmw "github.com/Pojie/pojie-go/internal/transport/http/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type AppConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       pojie.Logger
}

// NewApp creates the fiber application with the shared error handler.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		ErrorHandler:          errorHandler(cfg.Logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	return app
}

type RouterConfig struct {
	Engine *pojie.Engine
	Logger pojie.Logger
	APIKey string
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	if cfg.Logger == nil {
		cfg.Logger = pojie.NewFmtLogger()
	}
	client := cfg.Engine.Client()
	targetHandler := handlers.NewTargetHandler(client, cfg.Logger)
	engineHandler := handlers.NewEngineHandler(cfg.Engine, cfg.Logger)
	progressHandler := handlers.NewProgressHandler(client, cfg.Logger)

	app.Use("/ws", httpmw.APIKey(cfg.APIKey), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/progress", websocket.New(progressHandler.Handle))

	api := app.Group("/api", httpmw.APIKey(cfg.APIKey))
	api.Get("/status", engineHandler.GetStatus)
	api.Get("/config", engineHandler.GetConfig)
	api.Put("/config", engineHandler.UpdateConfig)

	targets := api.Group("/targets")
	targets.Post("/", targetHandler.SubmitTarget)
	targets.Get("/", targetHandler.GetTargets)
	targets.Delete("/", targetHandler.CancelAll)
	targets.Get("/:target", targetHandler.GetTarget)
	targets.Delete("/:target", targetHandler.CancelTarget)

	api.Get("/results", targetHandler.GetResults)
}

func errorHandler(log pojie.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		if log != nil {
			if code >= fiber.StatusInternalServerError {
				log.Errorf("request error: method=%s path=%s status=%d err=%v", c.Method(), c.Path(), code, err)
			} else {
				log.Warnf("request failed: method=%s path=%s status=%d err=%v", c.Method(), c.Path(), code, err)
			}
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

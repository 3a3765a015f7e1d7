package handlers

import (
	pojie "github.com/Pojie/pojie-go"
	"github.com/Pojie/pojie-go/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type EngineHandler struct {
	engine *pojie.Engine
	logger pojie.Logger
}

func NewEngineHandler(engine *pojie.Engine, logger pojie.Logger) *EngineHandler {
	return &EngineHandler{engine: engine, logger: logger}
}

func (h *EngineHandler) GetStatus(c *fiber.Ctx) error {
	current, _ := h.engine.Current()
	client := h.engine.Client()
	return c.JSON(dto.StatusResponse{
		Running: h.engine.Running(),
		Current: current,
		Targets: client.ListProgress(),
		Results: client.Results(),
	})
}

func (h *EngineHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(dto.AttemptConfigFrom(h.engine.AttemptConfig()))
}

// UpdateConfig applies to the next attempt; the one in flight keeps its
// configuration.
func (h *EngineHandler) UpdateConfig(c *fiber.Ctx) error {
	var req dto.UpdateAttemptConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	next, errs := req.Apply(h.engine.AttemptConfig())
	if len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}
	if err := h.engine.SetAttemptConfig(next); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	h.logger.Infof("attempt config updated over http: failure_mode=%s retry_limit=%d", next.FailureMode, next.RetryLimit)
	return c.JSON(dto.AttemptConfigFrom(h.engine.AttemptConfig()))
}

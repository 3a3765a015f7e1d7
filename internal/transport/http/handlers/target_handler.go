package handlers

import (
	"errors"
	"net/url"

	pojie "github.com/Pojie/pojie-go"
	"github.com/Pojie/pojie-go/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type TargetHandler struct {
	client *pojie.Client
	logger pojie.Logger
}

func NewTargetHandler(client *pojie.Client, logger pojie.Logger) *TargetHandler {
	return &TargetHandler{client: client, logger: logger}
}

func (h *TargetHandler) SubmitTarget(c *fiber.Ctx) error {
	var req dto.SubmitTargetRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnf("target submit body parse failed: err=%v", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	if err := h.client.Submit(req.Target, req.Candidates, req.Options()...); err != nil {
		if errors.Is(err, pojie.ErrDuplicateTarget) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: "target already submitted",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	p, _ := h.client.Get(req.Target)
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *TargetHandler) GetTargets(c *fiber.Ctx) error {
	return c.JSON(h.client.ListProgress())
}

func (h *TargetHandler) GetTarget(c *fiber.Ctx) error {
	target, err := targetParam(c)
	if err != nil {
		return err
	}
	p, ok := h.client.Get(target)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "target not found",
		})
	}
	return c.JSON(p)
}

func (h *TargetHandler) CancelTarget(c *fiber.Ctx) error {
	target, err := targetParam(c)
	if err != nil {
		return err
	}
	if !h.client.CancelTarget(target) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "target not found",
		})
	}
	h.logger.Infof("target cancelled over http: target=%s", target)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TargetHandler) CancelAll(c *fiber.Ctx) error {
	n := h.client.CancelAll()
	h.logger.Infof("all targets cancelled over http: count=%d", n)
	return c.JSON(dto.CancelResponse{Cancelled: n})
}

func (h *TargetHandler) GetResults(c *fiber.Ctx) error {
	return c.JSON(h.client.Results())
}

func targetParam(c *fiber.Ctx) (string, error) {
	target, err := url.PathUnescape(c.Params("target"))
	if err != nil || target == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid target")
	}
	return target, nil
}

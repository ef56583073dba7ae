package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow/task"
)

// validator is a task payload that can check itself before submission.
type validator interface {
	Validate() error
}

// submitTask starts a standalone media job and returns at once. The editor
// polls GET /tasks/:id with the returned runId.
func (h *Handler) submitTask(c fiber.Ctx, taskID string, p validator) error {
	if err := p.Validate(); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	handle, err := h.backend.Submit(c.Context(), taskID, p)
	if err != nil {
		h.logger.Error("submit task", "task_id", taskID, "error", err)
		return fail(c, fiber.StatusBadGateway, err.Error())
	}
	h.logger.Info("task submitted", "task_id", taskID, "handle", handle.ID)
	return c.JSON(fiber.Map{"runId": handle.ID})
}

func (h *Handler) cropImage(c fiber.Ctx) error {
	var p task.CropImagePayload
	if err := c.Bind().JSON(&p); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	return h.submitTask(c, task.CropImageTaskID, p)
}

func (h *Handler) extractFrame(c fiber.Ctx) error {
	var p task.ExtractFramePayload
	if err := c.Bind().JSON(&p); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if p.Timestamp == "" {
		p.Timestamp = "0"
	}
	return h.submitTask(c, task.ExtractFrameTaskID, p)
}

func (h *Handler) upload(c fiber.Ctx) error {
	var p task.UploadPayload
	if err := c.Bind().JSON(&p); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	return h.submitTask(c, task.UploadTaskID, p)
}

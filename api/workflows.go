package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow"
)

type workflowBody struct {
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

func (h *Handler) saveWorkflow(c fiber.Ctx) error {
	var body workflowBody
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	w := &flow.Workflow{ID: c.Params("id"), Nodes: body.Nodes, Edges: body.Edges}
	if w.Nodes == nil {
		w.Nodes = []flow.Node{}
	}
	if w.Edges == nil {
		w.Edges = []flow.Edge{}
	}
	if _, err := flow.NewGraph(w.Nodes, w.Edges); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.graphs.SaveWorkflow(c.Context(), w); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(w)
}

func (h *Handler) getWorkflow(c fiber.Ctx) error {
	w, err := h.graphs.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if w == nil {
		return fail(c, fiber.StatusNotFound, "workflow not found")
	}
	return c.JSON(w)
}

func (h *Handler) deleteWorkflow(c fiber.Ctx) error {
	if err := h.graphs.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

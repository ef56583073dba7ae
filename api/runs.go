package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/engine"
	"github.com/meikuraledutech/flow/task"
)

type runBody struct {
	Scope flow.Scope `json:"scope"`
	// Nodes and Edges are the editor's current graph. Without nodes the
	// stored graph of the workflow is run.
	Nodes   []flow.Node `json:"nodes"`
	Edges   []flow.Edge `json:"edges"`
	NodeIDs []string    `json:"nodeIds"`
}

type runResponse struct {
	RunID   string         `json:"runId"`
	Status  flow.Status    `json:"status"`
	Outputs map[string]any `json:"outputs"`
}

func (h *Handler) runWorkflow(c fiber.Ctx) error {
	var body runBody
	if err := c.Bind().JSON(&body); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	workflowID := c.Params("id")
	if body.Scope == "" {
		body.Scope = flow.ScopeFull
	}

	req := engine.Request{
		WorkflowID: workflowID,
		Scope:      body.Scope,
		Nodes:      body.Nodes,
		Edges:      body.Edges,
		Targets:    body.NodeIDs,
	}
	if len(body.Nodes) == 0 {
		w, err := h.graphs.GetWorkflow(c.Context(), workflowID)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err.Error())
		}
		if w == nil {
			return fail(c, fiber.StatusNotFound, flow.ErrWorkflowNotFound.Error())
		}
		req.Nodes, req.Edges = w.Nodes, w.Edges
	}

	res, err := h.engine.Run(c.Context(), req)
	if err == nil {
		return c.JSON(runResponse{RunID: res.RunID, Status: res.Status, Outputs: res.Outputs})
	}

	resp := fiber.Map{"error": err.Error()}
	if res != nil {
		resp["runId"] = res.RunID
	}
	var nodeErr *engine.NodeError
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	case errors.Is(err, flow.ErrCycleDetected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	case errors.As(err, &nodeErr):
		resp["error"] = nodeErr.Err.Error()
		resp["nodeId"] = nodeErr.NodeID
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(resp)
}

func (h *Handler) getHistory(c fiber.Ctx) error {
	runs, err := h.recorder.GetRuns(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(runs)
}

func (h *Handler) clearHistory(c fiber.Ctx) error {
	if err := h.recorder.ClearRuns(c.Context(), c.Params("id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type taskResponse struct {
	Status task.Status    `json:"status"`
	Output any            `json:"output"`
	Error  *task.RunError `json:"error"`
}

// getTask passes a backend job's raw state through for the editor's own
// polling.
func (h *Handler) getTask(c fiber.Ctx) error {
	run, err := h.backend.Retrieve(c.Context(), task.Handle{ID: c.Params("id")})
	if err != nil {
		return fail(c, fiber.StatusNotFound, err.Error())
	}
	resp := taskResponse{Status: run.Status, Error: run.Error}
	if len(run.Output) > 0 {
		resp.Output = run.Output
	}
	return c.JSON(resp)
}

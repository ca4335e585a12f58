// Package api exposes the data operations over HTTP: one POST endpoint per
// model and operation, with per-request visibility switches in the body.
package api

import (
	"github.com/gofiber/fiber/v2"

	"paranoid-backend/internal/client"
	"paranoid-backend/internal/metadata"
)

type Handler struct {
	client   *client.Client
	registry *metadata.Registry
}

func NewHandler(cl *client.Client, reg *metadata.Registry) *Handler {
	return &Handler{client: cl, registry: reg}
}

// operationRequest is the request envelope. The visibility switches apply to
// this call only; they never change configuration.
type operationRequest struct {
	Args               map[string]any  `json:"args"`
	WithTrashed        bool            `json:"withTrashed"`
	OnlyTrashed        bool            `json:"onlyTrashed"`
	WithTrashedRelated map[string]bool `json:"withTrashedRelated"`
}

// Operate handles POST /api/data/:model/:operation.
func (h *Handler) Operate(c *fiber.Ctx) error {
	modelName := c.Params("model")
	opName := c.Params("operation")

	if h.registry.GetModel(modelName) == nil {
		return UnknownModelError(modelName)
	}

	var req operationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
		}
	}

	mc := h.client.Model(modelName)
	switch {
	case req.OnlyTrashed:
		mc = mc.OnlyTrashed()
	case req.WithTrashed:
		mc = mc.WithTrashed()
	}
	if len(req.WithTrashedRelated) > 0 {
		mc = mc.WithTrashedRelated(req.WithTrashedRelated)
	}

	ctx := c.Context()
	var (
		result any
		err    error
	)
	switch opName {
	case "findMany":
		result, err = mc.FindMany(ctx, req.Args)
	case "findFirst":
		result, err = mc.FindFirst(ctx, req.Args)
	case "findFirstOrThrow":
		result, err = mc.FindFirstOrThrow(ctx, req.Args)
	case "findUnique":
		result, err = mc.FindUnique(ctx, req.Args)
	case "findUniqueOrThrow":
		result, err = mc.FindUniqueOrThrow(ctx, req.Args)
	case "create":
		result, err = mc.Create(ctx, req.Args)
	case "update":
		result, err = mc.Update(ctx, req.Args)
	case "updateMany":
		result, err = mc.UpdateMany(ctx, req.Args)
	case "upsert":
		result, err = mc.Upsert(ctx, req.Args)
	case "delete":
		result, err = mc.Delete(ctx, req.Args)
	case "deleteMany":
		result, err = mc.DeleteMany(ctx, req.Args)
	case "count":
		result, err = mc.Count(ctx, req.Args)
	case "aggregate":
		result, err = mc.Aggregate(ctx, req.Args)
	case "groupBy":
		result, err = mc.GroupBy(ctx, req.Args)
	case "forceDelete":
		where, _ := req.Args["where"].(map[string]any)
		result, err = mc.ForceDelete(ctx, where)
	default:
		return NewAppError("UNKNOWN_OPERATION", 404, "Unknown operation: "+opName)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

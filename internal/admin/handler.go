// Package admin serves the model-management endpoints: registering a model
// persists its definition, migrates its table (including the soft-delete
// marker column its policy requires) and reloads the registry.
package admin

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/store"
)

// MarkerResolver returns the marker column a model's table needs, or nil
// when the model is not soft-deletable.
type MarkerResolver func(model string) *store.MarkerColumn

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	migrator *store.Migrator
	marker   MarkerResolver
}

func NewHandler(s *store.Store, reg *metadata.Registry, mig *store.Migrator, marker MarkerResolver) *Handler {
	return &Handler{store: s, registry: reg, migrator: mig, marker: marker}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, mw ...fiber.Handler) {
	admin := app.Group("/api/_admin", mw...)

	admin.Get("/models", h.ListModels)
	admin.Get("/models/:name", h.GetModel)
	admin.Post("/models", h.CreateModel)
	admin.Put("/models/:name", h.UpdateModel)
	admin.Delete("/models/:name", h.DeleteModel)
}

func (h *Handler) ListModels(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT name, table_name, definition, created_at, updated_at FROM _models ORDER BY name")
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) GetModel(c *fiber.Ctx) error {
	name := c.Params("name")
	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT name, table_name, definition, created_at, updated_at FROM _models WHERE name = $1", name)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Model not found: " + name}})
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) CreateModel(c *fiber.Ctx) error {
	var model metadata.Model
	if err := c.BodyParser(&model); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
	}
	if err := model.Validate(); err != nil {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": err.Error()}})
	}
	if h.registry.GetModel(model.Name) != nil {
		return c.Status(409).JSON(fiber.Map{"error": fiber.Map{"code": "CONFLICT", "message": "Model already exists: " + model.Name}})
	}

	defJSON, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	_, err = store.Exec(c.Context(), h.store.Pool,
		"INSERT INTO _models (name, table_name, definition) VALUES ($1, $2, $3)",
		model.Name, model.Table, defJSON)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}

	if err := h.migrator.Migrate(c.Context(), &model, h.marker(model.Name)); err != nil {
		return fmt.Errorf("migrate model %s: %w", model.Name, err)
	}
	if err := metadata.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.Status(201).JSON(fiber.Map{"data": model})
}

func (h *Handler) UpdateModel(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.registry.GetModel(name) == nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Model not found: " + name}})
	}

	var model metadata.Model
	if err := c.BodyParser(&model); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
	}
	model.Name = name
	if err := model.Validate(); err != nil {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": err.Error()}})
	}

	defJSON, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	_, err = store.Exec(c.Context(), h.store.Pool,
		"UPDATE _models SET table_name = $2, definition = $3, updated_at = NOW() WHERE name = $1",
		name, model.Table, defJSON)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}

	// Additive migration only: new columns appear, nothing drops.
	if err := h.migrator.Migrate(c.Context(), &model, h.marker(model.Name)); err != nil {
		return fmt.Errorf("migrate model %s: %w", model.Name, err)
	}
	if err := metadata.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.JSON(fiber.Map{"data": model})
}

// DeleteModel removes the definition. The table stays; dropping data is an
// operator decision, not an API side effect.
func (h *Handler) DeleteModel(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.registry.GetModel(name) == nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Model not found: " + name}})
	}
	_, err := store.Exec(c.Context(), h.store.Pool, "DELETE FROM _models WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if err := metadata.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.JSON(fiber.Map{"message": "Model deleted: " + name})
}

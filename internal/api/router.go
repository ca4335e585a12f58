package api

import "github.com/gofiber/fiber/v2"

func RegisterDataRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	data := app.Group("/api/data", authMW)
	data.Post("/:model/:operation", h.Operate)
}

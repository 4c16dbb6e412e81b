package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/embedgate/embedgate/internal/embedding"
)

// RegisterEmbedRoutes wires the host page and the signed URL API. Routes that
// issue URLs run behind issuing, typically viewer auth then rate limiting.
func RegisterEmbedRoutes(app *fiber.App, h *embedding.Handler, issuing ...fiber.Handler) {
	chain := func(final fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, issuing...), final)
	}

	app.Get("/", chain(h.Page)...)

	api := app.Group("/api")
	api.Get("/embed-url", chain(h.URL)...)
	api.Post("/embed/verify", h.Verify)
}

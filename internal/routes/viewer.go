package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/embedgate/embedgate/internal/viewer"
)

// RegisterViewerRoutes wires viewer directory endpoints.
func RegisterViewerRoutes(r fiber.Router, h *viewer.Handler) {
	r.Post("/viewers", h.Register)
}

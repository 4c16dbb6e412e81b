package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/embedgate/embedgate/internal/viewer"
)

// Handler exposes the viewer login endpoint.
type Handler struct {
	viewers *viewer.Service
	svc     *Service
}

func NewHandler(viewers *viewer.Service, svc *Service) *Handler {
	return &Handler{viewers: viewers, svc: svc}
}

type loginRequest struct {
	ExternalID string `json:"external_id"`
	Password   string `json:"password"`
}

// Login validates credentials and returns a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.viewers.Authenticate(c.UserContext(), req.ExternalID, req.Password)
	if errors.Is(err, viewer.ErrInvalidCredentials) {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "authentication unavailable")
	}
	token, err := h.svc.Issue(v)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"external_id":  v.ExternalID,
		"access_token": token.AccessToken,
		"expires_in":   token.ExpiresIn,
	})
}

package viewer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes viewer directory endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a viewer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	ExternalID  string            `json:"external_id"`
	Email       string            `json:"email"`
	Password    string            `json:"password"`
	Team        string            `json:"team"`
	AccountType string            `json:"account_type"`
	Filters     map[string]string `json:"filters"`
}

type viewerResponse struct {
	ID          string            `json:"id"`
	ExternalID  string            `json:"external_id"`
	Email       string            `json:"email"`
	Team        string            `json:"team,omitempty"`
	AccountType string            `json:"account_type,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// Register adds a viewer to the directory.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Register(c.UserContext(), Registration{
		ExternalID:  req.ExternalID,
		Email:       req.Email,
		Password:    req.Password,
		Team:        req.Team,
		AccountType: req.AccountType,
		Filters:     req.Filters,
	})
	if errors.Is(err, ErrExists) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(viewerResponse{
		ID:          v.ID,
		ExternalID:  v.ExternalID,
		Email:       v.Email,
		Team:        v.Team,
		AccountType: v.AccountType,
		Filters:     v.Filters,
	})
}

package embedding

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/embedgate/embedgate/internal/embedurl"
	"github.com/embedgate/embedgate/internal/middleware"
)

const pageTitle = "Embedded Dashboard"

// Handler exposes the embed page and the signed URL API.
type Handler struct {
	service *Service
}

// NewHandler constructs an embedding HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type verifyRequest struct {
	URL string `json:"url"`
}

// Page renders the host page with a freshly signed iframe source.
func (h *Handler) Page(c *fiber.Ctx) error {
	signed, err := h.service.Issue(c.UserContext(), h.viewerID(c))
	if err != nil {
		status, msg := issueStatus(err)
		return c.Status(status).Render("error", fiber.Map{
			"Title":   pageTitle,
			"Message": msg,
		})
	}
	return c.Render("index", fiber.Map{
		"Title":     pageTitle,
		"EmbedURL":  signed.URL,
		"Viewer":    h.viewerID(c),
		"Mode":      string(h.service.Mode()),
		"ExpiresAt": signed.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// URL returns a freshly signed embed URL as JSON.
func (h *Handler) URL(c *fiber.Ctx) error {
	signed, err := h.service.Issue(c.UserContext(), h.viewerID(c))
	if err != nil {
		status, msg := issueStatus(err)
		return fiber.NewError(status, msg)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"url":        signed.URL,
		"expires_at": signed.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Verify checks a signed URL and echoes its claims.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" {
		return fiber.NewError(http.StatusBadRequest, "url is required")
	}
	claims, err := h.service.Verify(c.UserContext(), req.URL)
	if err != nil {
		if isRejection(err) {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
				"valid": false,
				"error": err.Error(),
			})
		}
		return fiber.NewError(http.StatusServiceUnavailable, "verification unavailable")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"valid":  true,
		"claims": claims,
	})
}

func (h *Handler) viewerID(c *fiber.Ctx) string {
	if id, ok := c.Locals(middleware.ViewerLocal).(string); ok && id != "" {
		return id
	}
	return h.service.DefaultViewerID()
}

func issueStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownViewer):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, embedurl.ErrInvalidConfig), errors.Is(err, embedurl.ErrEncoding):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "could not sign embed url"
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		embedurl.ErrMalformedURL,
		embedurl.ErrSignatureNotFound,
		embedurl.ErrInvalidSignature,
		embedurl.ErrClientMismatch,
		embedurl.ErrExpired,
		embedurl.ErrNotYetValid,
		embedurl.ErrReplayed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

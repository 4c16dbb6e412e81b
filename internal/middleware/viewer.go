package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/embedgate/embedgate/internal/auth"
)

// ViewerLocal is the fiber.Ctx Locals key holding the authenticated viewer's
// external id.
const ViewerLocal = "viewer_id"

// ViewerAuth resolves the bearer token into a viewer id. Requests without a
// token pass through anonymously unless required is set; a token that is
// present but invalid is always rejected.
func ViewerAuth(tokens *auth.Service, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if authz == "" {
			if required {
				return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
			}
			return c.Next()
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Parse(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(ViewerLocal, claims.Subject)
		return c.Next()
	}
}

package rest

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const principalKey = "principal"

// requireBearer decodes the access token from the Authorization header and
// stores its payload on the context for the handler.
func (h *Handler) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		parts := strings.Fields(c.Request().Header.Get(common.AuthorizationHeaderName))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return fmt.Errorf("missing bearer token: %w", common.ErrorUnauthorized)
		}

		payload, err := h.sessions.Authorize(parts[1])
		if err != nil {
			return fmt.Errorf("%v: %w", err, common.ErrorUnauthorized)
		}

		c.Set(principalKey, payload)
		return next(c)
	}
}

// requireRole must run after requireBearer.
func (h *Handler) requireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if principal(c).Role != role {
				return fmt.Errorf("%s role required: %w", role, common.ErrorForbidden)
			}
			return next(c)
		}
	}
}

func principal(c echo.Context) models.TokenPayload {
	p, _ := c.Get(principalKey).(models.TokenPayload)
	return p
}

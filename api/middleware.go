package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"djtunez-api/domain"
)

const sessionContextKey = "djtunez.session"

// RequireRole verifies the bearer credential once per request and rejects
// callers whose role claim does not match. The verified session is stashed on
// the echo context for the handler.
func RequireRole(identity Identity, role domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, err := identity.VerifySession(
				c.Request().Context(),
				c.Request().Header.Get(echo.HeaderAuthorization),
			)
			if err != nil {
				return jsonError(c, http.StatusUnauthorized, "Unauthorized")
			}
			if session.Role != role {
				return jsonError(c, http.StatusForbidden, "Forbidden")
			}
			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// sessionFromContext returns the session stored by RequireRole. The zero
// session means the middleware did not run, which is a wiring bug.
func sessionFromContext(c echo.Context) domain.Session {
	session, _ := c.Get(sessionContextKey).(domain.Session)
	return session
}

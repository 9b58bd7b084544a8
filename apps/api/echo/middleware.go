package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core/privilege"
)

// adminMiddleware lets through the users whose stored privilege is admin.
// It must run after the JWT middleware.
func adminMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := auth.claims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if privilege.IsAdmin(auth.actor(ctx).Privilege) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

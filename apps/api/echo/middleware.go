package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

// moderatorMiddleware only lets through users that can moderate plans.
func moderatorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.Role.CanModerate() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

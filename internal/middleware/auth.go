package middleware

import (
	"net/http"
	"strings"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/labstack/echo/v4"
)

const actorKey = "actor"

// AuthRequired validates the bearer token and stores the caller's Actor.
func AuthRequired(parser *auth.TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			claims, err := parser.Parse(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			c.Set(actorKey, claims.Actor())
			return next(c)
		}
	}
}

// RequireRole must run after AuthRequired.
func RequireRole(allowed ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			for _, role := range allowed {
				if actor.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden: this action requires role "+strings.Join(allowed, " or "))
		}
	}
}

func ActorFrom(c echo.Context) (auth.Actor, bool) {
	actor, ok := c.Get(actorKey).(auth.Actor)
	return actor, ok
}

func SetActor(c echo.Context, actor auth.Actor) {
	c.Set(actorKey, actor)
}

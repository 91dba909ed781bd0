package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRequired(t *testing.T) {
	parser := auth.NewTokenParser("secret", "residence")
	token, err := parser.Issue(auth.Actor{UserID: 9, Role: auth.RoleCustomer}, time.Minute)
	require.NoError(t, err)

	var seen auth.Actor
	h := AuthRequired(parser)(func(c echo.Context) error {
		seen, _ = ActorFrom(c)
		return c.NoContent(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h(c)
			if tt.code == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, uint(9), seen.UserID)
				return
			}
			he, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, tt.code, he.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(auth.RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	SetActor(c, auth.Actor{UserID: 1, Role: auth.RoleOwner})

	err := h(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)

	SetActor(c, auth.Actor{UserID: 2, Role: auth.RoleAdmin})
	assert.NoError(t, h(c))
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type verifierFunc func(ctx context.Context, token string) (*jwt.RegisteredClaims, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*jwt.RegisteredClaims, error) {
	return f(ctx, token)
}

func staticVerifier(valid string) TokenVerifier {
	return verifierFunc(func(_ context.Context, token string) (*jwt.RegisteredClaims, error) {
		if token != valid {
			return nil, models.Fail("validate_token", models.ReasonUnauthenticated, "invalid token")
		}
		return &jwt.RegisteredClaims{Subject: "user-1"}, nil
	})
}

func newAuthEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(nopLogger{})
	e.GET("/me", func(c echo.Context) error {
		actor, _ := models.ActorFrom(c.Request().Context())
		return c.String(http.StatusOK, actor+"|"+GetUserID(c))
	}, JWTAuth(staticVerifier("good")))
	return e
}

func TestJWTAuth(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{name: "bearer header", header: "Bearer good", wantCode: http.StatusOK, wantBody: "user-1|user-1"},
		{name: "query token", query: "?token=good", wantCode: http.StatusOK, wantBody: "user-1|user-1"},
		{name: "missing", wantCode: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", wantCode: http.StatusUnauthorized},
	}
	e := newAuthEcho()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

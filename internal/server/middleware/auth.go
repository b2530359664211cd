package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

// ContextKeyUser is the echo context key of the verified *jwt.Token.
const ContextKeyUser = "user"

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwt.RegisteredClaims, error)
}

// JWTAuth verifies the bearer token of the request and makes its subject the
// acting user of the request context. Browsers cannot set headers on a
// websocket handshake, so the token may also come as the "token" query param.
func JWTAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := extractToken(c)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			claims, err := verifier.Verify(ctx, tokenString)
			if err != nil {
				return err
			}

			c.Set(ContextKeyUser, &jwt.Token{Claims: claims, Valid: true})
			ctx = models.WithActor(ctx, claims.Subject)
			ctx = log.WithFields(ctx, "user_id", claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	return tokenString, nil
}

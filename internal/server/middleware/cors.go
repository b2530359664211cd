package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodHead, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete,
	}, ", ")
	corsMaxAge = strconv.Itoa(int((10 * time.Minute).Seconds()))
)

// CORS allows browser calls from origins matching pattern. The pattern must
// be anchored by the caller. Preflights are answered here and never reach
// authentication.
func CORS(pattern *regexp.Regexp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			header := c.Response().Header()
			header.Add(echo.HeaderVary, echo.HeaderOrigin)

			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !pattern.MatchString(origin) {
				return next(c)
			}
			header.Set(echo.HeaderAccessControlAllowOrigin, origin)
			header.Set(echo.HeaderAccessControlExposeHeaders, XRequestID)

			if req.Method != http.MethodOptions || req.Header.Get(echo.HeaderAccessControlRequestMethod) == "" {
				return next(c)
			}
			header.Add(echo.HeaderVary, echo.HeaderAccessControlRequestHeaders)
			allowHeaders := req.Header.Get(echo.HeaderAccessControlRequestHeaders)
			if allowHeaders == "" {
				allowHeaders = echo.HeaderAuthorization + ", " + echo.HeaderContentType
			}
			header.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			header.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
			header.Set(echo.HeaderAccessControlMaxAge, corsMaxAge)
			return c.NoContent(http.StatusNoContent)
		}
	}
}

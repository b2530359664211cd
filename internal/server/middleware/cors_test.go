package middleware

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(regexp.MustCompile(`^https://app\.example\.com$`)))
	e.GET("/channels", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	tests := []struct {
		name        string
		method      string
		header      http.Header
		wantCode    int
		wantOrigin  string
		wantHeaders string
	}{
		{
			name:       "allowed simple request",
			method:     http.MethodGet,
			header:     http.Header{"Origin": {"https://app.example.com"}},
			wantCode:   http.StatusOK,
			wantOrigin: "https://app.example.com",
		},
		{
			name:     "foreign origin",
			method:   http.MethodGet,
			header:   http.Header{"Origin": {"https://other.example.com"}},
			wantCode: http.StatusOK,
		},
		{
			name:   "preflight echoes requested headers",
			method: http.MethodOptions,
			header: http.Header{
				"Origin":                         {"https://app.example.com"},
				"Access-Control-Request-Method":  {http.MethodGet},
				"Access-Control-Request-Headers": {"authorization, x-request-id"},
			},
			wantCode:    http.StatusNoContent,
			wantOrigin:  "https://app.example.com",
			wantHeaders: "authorization, x-request-id",
		},
		{
			name:   "preflight default headers",
			method: http.MethodOptions,
			header: http.Header{
				"Origin":                        {"https://app.example.com"},
				"Access-Control-Request-Method": {http.MethodGet},
			},
			wantCode:    http.StatusNoContent,
			wantOrigin:  "https://app.example.com",
			wantHeaders: "Authorization, Content-Type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/channels", nil)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Equal(t, tt.wantHeaders, rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
			assert.Contains(t, rec.Header().Values(echo.HeaderVary), echo.HeaderOrigin)
		})
	}
}

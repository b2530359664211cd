package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "failure not found",
			err:      models.Fail("get_channel", models.ReasonNotFound, "channel not found"),
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name:     "failure permission denied",
			err:      models.Fail("send_message", models.ReasonPermissionDenied, "not a member"),
			wantCode: http.StatusForbidden,
			wantErr:  "permission_denied",
		},
		{
			name:     "failure unavailable",
			err:      models.AsFailure("list_channels", models.Fail("", models.ReasonUnavailable, "db down")),
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "unavailable",
		},
		{
			name:     "grpc status sentinel",
			err:      models.ErrAlreadyExists,
			wantCode: http.StatusConflict,
			wantErr:  "already_exists",
		},
		{
			name:     "echo http error",
			err:      echo.NewHTTPError(http.StatusBadRequest, "bad"),
			wantCode: http.StatusBadRequest,
			wantErr:  "Bad Request",
		},
		{
			name:     "plain error is internal",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(nopLogger{})(tt.err, c)

			require.Equal(t, tt.wantCode, rec.Code)
			var body ResponseError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantErr, body.ErrorCode)
		})
	}
}

func TestErrorHandlerHidesInternalMessage(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(nopLogger{})(errors.New("mongo: connection string leaked"), c)

	assert.NotContains(t, rec.Body.String(), "leaked")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(models.ReasonUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(models.ReasonInvalidArgument))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(models.Reason("unknown")))
}

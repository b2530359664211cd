package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

// StatusClientClosedRequest is reported when the client went away before the
// handler finished.
const StatusClientClosedRequest = 499

var reasonStatus = map[models.Reason]int{
	models.ReasonNotFound:         http.StatusNotFound,
	models.ReasonPermissionDenied: http.StatusForbidden,
	models.ReasonUnauthenticated:  http.StatusUnauthorized,
	models.ReasonInvalidArgument:  http.StatusBadRequest,
	models.ReasonAlreadyExists:    http.StatusConflict,
	models.ReasonUnavailable:      http.StatusServiceUnavailable,
	models.ReasonInternal:         http.StatusInternalServerError,
}

// HTTPStatus returns the response status of a failure reason.
func HTTPStatus(reason models.Reason) int {
	if code, ok := reasonStatus[reason]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// ErrorHandler return custom http error handler. Messaging failures are
// answered with the status of their reason and the failure as error data.
func ErrorHandler(log Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		resp := newResponseError(c, err)
		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.Status)
		} else {
			err = c.JSON(resp.Status, resp)
		}
		if err != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp, "error", err)
		}
	}
}

func newResponseError(c echo.Context, err error) *ResponseError {
	var (
		re *ResponseError
		he *echo.HTTPError
		f  *models.Failure
	)
	switch {
	case errors.As(err, &re):
		return re
	case errors.As(err, &he):
		return &ResponseError{
			Status:       he.Code,
			Err:          err,
			ErrorCode:    http.StatusText(he.Code),
			ErrorMessage: fmt.Sprint(he.Message),
		}
	case errors.As(err, &f):
		return &ResponseError{
			Status:       HTTPStatus(f.Reason),
			Err:          err,
			ErrorCode:    string(f.Reason),
			ErrorMessage: f.Message,
			ErrorData:    f,
		}
	// detect canceled request error
	case errors.Is(err, context.Canceled) && errors.Is(c.Request().Context().Err(), context.Canceled):
		return &ResponseError{
			Status:       StatusClientClosedRequest,
			Err:          err,
			ErrorCode:    string(models.ReasonUnavailable),
			ErrorMessage: "request canceled",
		}
	}

	reason := models.ReasonOf(err)
	resp := &ResponseError{
		Status:       HTTPStatus(reason),
		Err:          err,
		ErrorCode:    string(reason),
		ErrorMessage: err.Error(),
	}
	if reason == models.ReasonInternal {
		resp.ErrorMessage = http.StatusText(http.StatusInternalServerError)
	}
	return resp
}

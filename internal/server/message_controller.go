package server

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type messageRequest struct {
	MessageID string `param:"id" validate:"required,objectid"`
}

type editMessageRequest struct {
	MessageID string `param:"id" validate:"required,objectid"`
	Content   string `json:"content" validate:"required,max=10000"`
}

type reactionRequest struct {
	MessageID string `param:"id" validate:"required,objectid"`
	Emoji     string `json:"emoji" param:"emoji" validate:"required,max=32"`
}

func (h *controller) SearchMessages(c echo.Context, req searchRequest) ([]*models.Message, error) {
	return h.api.SearchMessages(c.Request().Context(), req.Query, "")
}

func (h *controller) EditMessage(c echo.Context, req editMessageRequest) (*models.Message, error) {
	return h.api.EditMessage(c.Request().Context(), req.MessageID, req.Content)
}

func (h *controller) DeleteMessage(c echo.Context, req messageRequest) error {
	return h.api.DeleteMessage(c.Request().Context(), req.MessageID)
}

func (h *controller) AddReaction(c echo.Context, req reactionRequest) error {
	return h.api.AddReaction(c.Request().Context(), req.MessageID, req.Emoji)
}

func (h *controller) RemoveReaction(c echo.Context, req reactionRequest) error {
	emoji, err := url.PathUnescape(req.Emoji)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid emoji")
	}
	return h.api.RemoveReaction(c.Request().Context(), req.MessageID, emoji)
}

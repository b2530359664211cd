package server

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/team-messaging/internal/server/middleware"
)

type channelRequest struct {
	ChannelID string `param:"id" validate:"required,objectid"`
}

type listMessagesRequest struct {
	ChannelID string `param:"id" validate:"required,objectid"`
	Limit     int    `query:"limit" validate:"gte=0,lte=100"`
	Offset    int    `query:"offset" validate:"gte=0"`
}

type directMessageRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type searchRequest struct {
	ChannelID string `param:"id"`
	Query     string `query:"q" validate:"required"`
}

func (h *controller) ListChannels(c echo.Context, _ struct{}) ([]*models.Channel, error) {
	return h.api.ListChannels(c.Request().Context())
}

func (h *controller) CreateChannel(c echo.Context, req models.CreateChannelRequest) (*pkgmdw.Response, error) {
	channel, err := h.api.CreateChannel(c.Request().Context(), req)
	if err != nil {
		return nil, err
	}
	return created(channel), nil
}

func (h *controller) CreateDirectMessage(c echo.Context, req directMessageRequest) (*models.Channel, error) {
	return h.api.CreateDirectMessage(c.Request().Context(), req.UserID)
}

func (h *controller) JoinChannel(c echo.Context, req channelRequest) (*models.ChannelMember, error) {
	return h.api.JoinChannel(c.Request().Context(), req.ChannelID)
}

func (h *controller) LeaveChannel(c echo.Context, req channelRequest) error {
	return h.api.LeaveChannel(c.Request().Context(), req.ChannelID)
}

func (h *controller) ArchiveChannel(c echo.Context, req channelRequest) error {
	return h.api.ArchiveChannel(c.Request().Context(), req.ChannelID)
}

func (h *controller) MarkChannelAsRead(c echo.Context, req channelRequest) error {
	return h.api.MarkChannelAsRead(c.Request().Context(), req.ChannelID)
}

func (h *controller) ListParticipants(c echo.Context, req channelRequest) ([]*models.ChannelMember, error) {
	return h.api.ListParticipants(c.Request().Context(), req.ChannelID)
}

func (h *controller) ListMessages(c echo.Context, req listMessagesRequest) ([]*models.Message, error) {
	return h.api.ListMessages(c.Request().Context(), req.ChannelID, req.Limit, req.Offset)
}

func (h *controller) SendMessage(c echo.Context, req models.SendMessageRequest) (*pkgmdw.Response, error) {
	req.ChannelID = c.Param("id")
	msg, err := h.api.SendMessage(c.Request().Context(), req)
	if err != nil {
		return nil, err
	}
	return created(msg), nil
}

func (h *controller) SearchChannel(c echo.Context, req searchRequest) ([]*models.Message, error) {
	return h.api.SearchMessages(c.Request().Context(), req.Query, req.ChannelID)
}

type uploadRequest struct {
	ChannelID   string `param:"id" validate:"required,objectid"`
	ContentType string `header:"Content-Type" validate:"required"`
}

func (h *controller) UploadFile(c echo.Context, req uploadRequest) (*pkgmdw.Response, error) {
	if mediaType, _, err := mime.ParseMediaType(req.ContentType); err != nil || mediaType != echo.MIMEMultipartForm {
		return nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, "files are uploaded as multipart/form-data")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "missing multipart field \"file\"")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	uploaded, err := h.api.UploadFile(c.Request().Context(), req.ChannelID, models.FileUpload{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Body:        f,
	})
	if err != nil {
		return nil, err
	}
	return created(uploaded), nil
}

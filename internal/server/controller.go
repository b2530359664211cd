package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	pkgmdw "github.com/nguyentranbao-ct/team-messaging/internal/server/middleware"
)

type Controller interface {
	Health(c echo.Context) error
	DownloadFile(c echo.Context) error
	RegisterRoutes(api *echo.Group)
}

type controller struct {
	api usecase.Messaging
}

func NewController(api usecase.Messaging) Controller {
	return &controller{api: api}
}

func (h *controller) RegisterRoutes(api *echo.Group) {
	api.GET("/channels", pkgmdw.WrapHandler(h.ListChannels))
	api.POST("/channels", pkgmdw.WrapHandler(h.CreateChannel))
	api.POST("/channels/:id/join", pkgmdw.WrapHandler(h.JoinChannel))
	api.POST("/channels/:id/leave", pkgmdw.WrapHandler(h.LeaveChannel))
	api.POST("/channels/:id/archive", pkgmdw.WrapHandler(h.ArchiveChannel))
	api.POST("/channels/:id/read", pkgmdw.WrapHandler(h.MarkChannelAsRead))
	api.GET("/channels/:id/participants", pkgmdw.WrapHandler(h.ListParticipants))
	api.GET("/channels/:id/messages", pkgmdw.WrapHandler(h.ListMessages))
	api.POST("/channels/:id/messages", pkgmdw.WrapHandler(h.SendMessage))
	api.GET("/channels/:id/search", pkgmdw.WrapHandler(h.SearchChannel))
	api.POST("/channels/:id/files", pkgmdw.WrapHandler(h.UploadFile))
	api.POST("/direct-messages", pkgmdw.WrapHandler(h.CreateDirectMessage))

	api.GET("/messages/search", pkgmdw.WrapHandler(h.SearchMessages))
	api.PATCH("/messages/:id", pkgmdw.WrapHandler(h.EditMessage))
	api.DELETE("/messages/:id", pkgmdw.WrapHandler(h.DeleteMessage))
	api.POST("/messages/:id/reactions", pkgmdw.WrapHandler(h.AddReaction))
	api.DELETE("/messages/:id/reactions/:emoji", pkgmdw.WrapHandler(h.RemoveReaction))

	api.GET("/presence", pkgmdw.WrapHandler(h.GetPresence))
	api.PUT("/presence", pkgmdw.WrapHandler(h.UpdatePresence))
	api.GET("/users", pkgmdw.WrapHandler(h.ListUsers))
	api.PUT("/profile", pkgmdw.WrapHandler(h.UpsertProfile))
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "team-messaging",
	})
}

// DownloadFile serves the public URL of an uploaded file.
func (h *controller) DownloadFile(c echo.Context) error {
	body, info, err := h.api.OpenFile(c.Request().Context(), c.Param("*"))
	if err != nil {
		return err
	}
	defer body.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	header.Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, info.ContentType, body)
}

func created(data any) *pkgmdw.Response {
	return &pkgmdw.Response{Status: http.StatusCreated, Success: true, Data: data}
}

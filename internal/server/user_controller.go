package server

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type presenceRequest struct {
	UserIDs string `query:"user_ids"`
	Me      string `jwt:"sub"`
}

// GetPresence answers for user_ids, or for the caller when none are given.
func (h *controller) GetPresence(c echo.Context, req presenceRequest) ([]*models.Presence, error) {
	userIDs := []string{req.Me}
	if req.UserIDs != "" {
		userIDs = strings.Split(req.UserIDs, ",")
	}
	return h.api.GetUsersPresence(c.Request().Context(), userIDs)
}

func (h *controller) UpdatePresence(c echo.Context, req models.UpdatePresenceRequest) (*models.Presence, error) {
	return h.api.UpdatePresence(c.Request().Context(), req)
}

func (h *controller) ListUsers(c echo.Context, _ struct{}) ([]*models.Profile, error) {
	return h.api.ListUsers(c.Request().Context())
}

func (h *controller) UpsertProfile(c echo.Context, req models.UpdateProfileRequest) (*models.Profile, error) {
	return h.api.UpsertProfile(c.Request().Context(), req)
}

package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rdrf/rdrf/internal/platform/auth"
)

type Handler struct {
	exec *Executor
}

func NewHandler(exec *Executor) *Handler {
	return &Handler{exec: exec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleCurator, auth.RoleClinician, auth.RoleDataEntry, auth.RolePatient, auth.RoleParent))
	g.POST("/rpc", h.Call)
}

func (h *Handler) Call(c echo.Context) error {
	var req Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rpc request: "+err.Error())
	}
	if strings.TrimSpace(req.Command) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "rpc_command is required")
	}
	return c.JSON(http.StatusOK, h.exec.Execute(c.Request().Context(), req))
}

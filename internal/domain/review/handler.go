package review

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rdrf/rdrf/internal/domain/patient"
	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	patients PatientSource
}

func NewHandler(svc *Service, patients PatientSource) *Handler {
	return &Handler{svc: svc, patients: patients}
}

// RegisterRoutes adds the review definition endpoints under api.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleCurator, auth.RoleClinician))
	readGroup.GET("/registries/:code/reviews", h.ListReviews, auth.RequireRegistry("code"))
	readGroup.GET("/reviews/:id/items", h.ListItems)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleCurator))
	writeGroup.POST("/registries/:code/reviews", h.CreateReview, auth.RequireRegistry("code"))
	writeGroup.POST("/reviews/:id/items", h.AddItem)
	writeGroup.POST("/registries/:code/reviews/:id/patients/:patient_id", h.SendReview, auth.RequireRegistry("code"))
}

// RegisterPublicRoutes adds the token-authenticated reviewer endpoints.
func (h *Handler) RegisterPublicRoutes(e *echo.Echo) {
	e.GET("/reviews", h.Open)
	e.PUT("/reviews/items/:id", h.UpdateItem)
	e.POST("/reviews/complete", h.Complete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, registry.ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrReviewFinished):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoParent), errors.Is(err, ErrNoUser), errors.Is(err, ErrUnsupportedReviewType):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseUUID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

func (h *Handler) ListReviews(c echo.Context) error {
	items, err := h.svc.ListReviews(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateReview(c echo.Context) error {
	var r Review
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateReview(c.Request().Context(), c.Param("code"), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListItems(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListItems(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	var item ReviewItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddItem(c.Request().Context(), id, &item); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

// SendReview creates a patient review from the API and returns its link.
func (h *Handler) SendReview(c echo.Context) error {
	ctx := c.Request().Context()
	reviewID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	patientID, err := parseUUID(c, "patient_id")
	if err != nil {
		return err
	}
	reg, err := h.svc.registries.GetRegistryByCode(ctx, c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	r, err := h.svc.GetReview(ctx, reviewID)
	if err != nil {
		return httpError(err)
	}
	if r.RegistryID != reg.ID {
		return echo.NewHTTPError(http.StatusNotFound, "review not found in registry")
	}
	p, err := h.patients.Lookup(ctx, patientID)
	if err != nil {
		return httpError(err)
	}
	if !patient.CanAccess(auth.UserFromContext(ctx), p) {
		return echo.NewHTTPError(http.StatusForbidden, "no access to this patient")
	}
	url, err := h.svc.CreatePatientReview(ctx, r, reg, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}

// -- Reviewer endpoints --

func (h *Handler) Open(c echo.Context) error {
	view, err := h.svc.GetByToken(c.Request().Context(), c.QueryParam("t"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body: "+err.Error())
	}
	item, err := h.svc.UpdateItem(c.Request().Context(), c.QueryParam("t"), id, body.Data)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Complete(c echo.Context) error {
	if err := h.svc.Complete(c.Request().Context(), c.QueryParam("t")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"state": StateFinished})
}

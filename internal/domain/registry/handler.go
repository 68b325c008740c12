package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – registry staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleCurator, auth.RoleClinician, auth.RoleDataEntry))
	readGroup.GET("/registries", h.ListRegistries)
	readGroup.GET("/registries/:code", h.GetRegistry, auth.RequireRegistry("code"))
	readGroup.GET("/registries/:code/forms", h.ListForms, auth.RequireRegistry("code"))
	readGroup.GET("/forms/:id", h.GetForm)
	readGroup.GET("/forms/:id/definition", h.GetFormDefinition)
	readGroup.GET("/sections", h.ListSections)
	readGroup.GET("/sections/:id", h.GetSection)
	readGroup.GET("/cdes", h.ListCDEs)
	readGroup.GET("/cdes/:code", h.GetCDE)
	readGroup.GET("/pvgroups", h.ListPermittedValueGroups)
	readGroup.GET("/pvgroups/:code/values", h.ListPermittedValues)
	readGroup.GET("/wizards", h.ListWizards)
	readGroup.GET("/wizards/:id", h.GetWizard)
	readGroup.GET("/registries/:code/questionnaire/responses", h.ListResponses, auth.RequireRegistry("code"))
	readGroup.GET("/questionnaire-responses/:id", h.GetResponse)

	// Definition endpoints – curators
	writeGroup := api.Group("", auth.RequireRole(auth.RoleCurator))
	writeGroup.POST("/registries", h.CreateRegistry)
	writeGroup.PUT("/registries/:code", h.UpdateRegistry)
	writeGroup.DELETE("/registries/:code", h.DeleteRegistry)
	writeGroup.POST("/registries/:code/forms", h.CreateForm)
	writeGroup.PUT("/forms/:id", h.UpdateForm)
	writeGroup.DELETE("/forms/:id", h.DeleteForm)
	writeGroup.POST("/sections", h.CreateSection)
	writeGroup.PUT("/sections/:id", h.UpdateSection)
	writeGroup.DELETE("/sections/:id", h.DeleteSection)
	writeGroup.POST("/cdes", h.CreateCDE)
	writeGroup.PUT("/cdes/:code", h.UpdateCDE)
	writeGroup.DELETE("/cdes/:code", h.DeleteCDE)
	writeGroup.POST("/pvgroups", h.CreatePermittedValueGroup)
	writeGroup.POST("/pvgroups/:code/values", h.AddPermittedValue)
	writeGroup.POST("/wizards", h.CreateWizard)

	// Questionnaire – anyone signed in, patients and parents included
	anyGroup := api.Group("", auth.RequireRole(auth.RoleCurator, auth.RoleClinician, auth.RoleDataEntry, auth.RolePatient, auth.RoleParent))
	anyGroup.GET("/registries/:code/questionnaire", h.GetQuestionnaire)
	anyGroup.POST("/registries/:code/questionnaire/responses", h.SubmitQuestionnaire)
}

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	var fe FieldErrors
	switch {
	case errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "validation failed",
			"errors":  fe,
		})
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoQuestionnaire):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrMultipleFound), errors.Is(err, ErrAlreadyProcessed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Registries --

func (h *Handler) ListRegistries(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRegistries(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateRegistry(c echo.Context) error {
	var r Registry
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRegistry(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRegistry(c echo.Context) error {
	r, err := h.svc.GetRegistryByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateRegistry(c echo.Context) error {
	ctx := c.Request().Context()
	existing, err := h.svc.GetRegistryByCode(ctx, c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	var r Registry
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = existing.ID
	r.CreatedAt = existing.CreatedAt
	if err := h.svc.UpdateRegistry(ctx, &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRegistry(c echo.Context) error {
	if err := h.svc.DeleteRegistry(c.Request().Context(), c.Param("code")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetQuestionnaire(c echo.Context) error {
	ctx := c.Request().Context()
	form, err := h.svc.Questionnaire(ctx, c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	def, err := h.svc.FormDefinition(ctx, form.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

// -- Forms --

func (h *Handler) ListForms(c echo.Context) error {
	forms, err := h.svc.ListForms(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, forms)
}

func (h *Handler) CreateForm(c echo.Context) error {
	var f RegistryForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateForm(c.Request().Context(), c.Param("code"), &f); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.GetForm(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) GetFormDefinition(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	def, err := h.svc.FormDefinition(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

func (h *Handler) UpdateForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var f RegistryForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ID = id
	if err := h.svc.UpdateForm(c.Request().Context(), &f); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteForm(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Sections --

func (h *Handler) ListSections(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSections(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateSection(c echo.Context) error {
	var s Section
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSection(c.Request().Context(), &s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetSection(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var s Section
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.ID = id
	if err := h.svc.UpdateSection(c.Request().Context(), &s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSection(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- CDEs --

func (h *Handler) ListCDEs(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCDEs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateCDE(c echo.Context) error {
	var cde CommonDataElement
	if err := c.Bind(&cde); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCDE(c.Request().Context(), &cde); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cde)
}

func (h *Handler) GetCDE(c echo.Context) error {
	cde, err := h.svc.GetCDE(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cde)
}

func (h *Handler) UpdateCDE(c echo.Context) error {
	var cde CommonDataElement
	if err := c.Bind(&cde); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cde.Code = c.Param("code")
	if err := h.svc.UpdateCDE(c.Request().Context(), &cde); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cde)
}

func (h *Handler) DeleteCDE(c echo.Context) error {
	if err := h.svc.DeleteCDE(c.Request().Context(), c.Param("code")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPermittedValueGroups(c echo.Context) error {
	groups, err := h.svc.ListPermittedValueGroups(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) CreatePermittedValueGroup(c echo.Context) error {
	var g PermittedValueGroup
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePermittedValueGroup(c.Request().Context(), &g); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) ListPermittedValues(c echo.Context) error {
	values, err := h.svc.PermittedValues(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, values)
}

func (h *Handler) AddPermittedValue(c echo.Context) error {
	var pv PermittedValue
	if err := c.Bind(&pv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddPermittedValue(c.Request().Context(), c.Param("code"), &pv); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, pv)
}

// -- Wizards --

func (h *Handler) ListWizards(c echo.Context) error {
	wizards, err := h.svc.ListWizards(c.Request().Context(), c.QueryParam("registry"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, wizards)
}

func (h *Handler) CreateWizard(c echo.Context) error {
	var w Wizard
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateWizard(c.Request().Context(), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWizard(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	w, err := h.svc.GetWizard(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

// -- Questionnaire responses --

func (h *Handler) SubmitQuestionnaire(c echo.Context) error {
	// Decoded directly so path params never leak into the answers map.
	var answers map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&answers); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid answers: "+err.Error())
	}
	qr, err := h.svc.SubmitQuestionnaire(c.Request().Context(), c.Param("code"), answers)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, qr)
}

func (h *Handler) ListResponses(c echo.Context) error {
	var processed *bool
	if v := c.QueryParam("processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "processed must be true or false")
		}
		processed = &b
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListResponses(c.Request().Context(), c.Param("code"), processed, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetResponse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	qr, err := h.svc.GetResponse(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, qr)
}

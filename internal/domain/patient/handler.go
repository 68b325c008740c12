package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/blobstore"
	"github.com/rdrf/rdrf/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := []string{auth.RoleCurator, auth.RoleClinician, auth.RoleDataEntry}
	everyone := append(append([]string{}, staff...), auth.RolePatient, auth.RoleParent)

	// Registry landing page and own record – anyone signed in
	anyGroup := api.Group("", auth.RequireRole(everyone...))
	anyGroup.GET("/registries/:code/patient", h.View)
	anyGroup.GET("/patients/:id", h.GetPatient)
	anyGroup.GET("/patients/:id/consents", h.ListConsents)
	anyGroup.POST("/patients/:id/consents", h.UploadConsent)
	anyGroup.GET("/patients/:id/consents/:consent_id", h.DownloadConsent)
	anyGroup.GET("/patients/:id/parents", h.ListParents)

	// Patient form – a missing login gets a redirect hint, not a bare 401
	formGroup := api.Group("", LoginRequired, auth.RequireRole(everyone...))
	formGroup.GET("/registries/:code/patients/:id/edit", h.EditForm)
	formGroup.POST("/registries/:code/patients/:id/edit", h.SubmitEdit)

	// Patient records – registry staff
	readGroup := api.Group("", auth.RequireRole(staff...))
	readGroup.GET("/registries/:code/patients", h.ListPatients, auth.RequireRegistry("code"))
	readGroup.GET("/registries/:code/patients/export", h.Export, auth.RequireRegistry("code"))
	readGroup.GET("/registries/:code/patients/new", h.NewForm, auth.RequireRegistry("code"))
	readGroup.POST("/registries/:code/patients", h.SubmitNew, auth.RequireRegistry("code"))
	readGroup.GET("/patients/unallocated", h.ListUnallocated)
	readGroup.DELETE("/patients/:id", h.DeletePatient)
	readGroup.DELETE("/patients/:id/consents/:consent_id", h.DeleteConsent)
	readGroup.POST("/patients/:id/parents", h.AddParent)
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)
	readGroup.GET("/lookups/states", h.States)
	readGroup.GET("/lookups/relationships", h.Relationships)
	readGroup.GET("/lookups/address-types", h.AddressTypes)
	readGroup.GET("/lookups/working-groups", h.WorkingGroups)

	// Reference data and questionnaire approval – curators
	writeGroup := api.Group("", auth.RequireRole(auth.RoleCurator))
	writeGroup.POST("/doctors", h.CreateDoctor)
	writeGroup.PUT("/doctors/:id", h.UpdateDoctor)
	writeGroup.DELETE("/doctors/:id", h.DeleteDoctor)
	writeGroup.POST("/lookups/working-groups", h.CreateWorkingGroup)
	writeGroup.POST("/questionnaire-responses/:id/approve", h.ApproveQuestionnaire)
}

// LoginRequired answers unauthenticated requests with 401 and the login URL
// that returns the caller to the requested page.
func LoginRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if auth.UserFromContext(c.Request().Context()).Authenticated() {
			return next(c)
		}
		login := "/login?next=" + url.QueryEscape(c.Request().URL.Path)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"message": "authentication required",
			"login":   login,
		})
	}
}

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	var fe registry.FieldErrors
	switch {
	case errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "validation failed",
			"errors":  fe,
		})
	case errors.Is(err, ErrInvalid), errors.Is(err, registry.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "no access to this patient")
	case errors.Is(err, ErrNotFound), errors.Is(err, registry.ErrNotFound), errors.Is(err, ErrRegistryNotExists):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicatePatient), errors.Is(err, registry.ErrAlreadyProcessed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseUUID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", param))
	}
	return id, nil
}

func currentUser(c echo.Context) auth.User {
	return auth.UserFromContext(c.Request().Context())
}

// -- Registry view and patient form --

func (h *Handler) View(c echo.Context) error {
	out, err := h.svc.ViewContext(c.Request().Context(), currentUser(c), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) NewForm(c echo.Context) error {
	res, err := h.svc.NewContext(c.Request().Context(), currentUser(c), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) EditForm(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.EditContext(c.Request().Context(), currentUser(c), c.Param("code"), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SubmitNew(c echo.Context) error {
	return h.submit(c, nil, http.StatusCreated)
}

func (h *Handler) SubmitEdit(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	return h.submit(c, &id, http.StatusOK)
}

func (h *Handler) submit(c echo.Context, id *uuid.UUID, okStatus int) error {
	var sub Submission
	if err := json.NewDecoder(c.Request().Body).Decode(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body: "+err.Error())
	}
	res, err := h.svc.SubmitForm(c.Request().Context(), currentUser(c), c.Param("code"), id, sub)
	if err != nil {
		if res != nil && res.Errors {
			return c.JSON(http.StatusUnprocessableEntity, res)
		}
		return httpError(err)
	}
	return c.JSON(okStatus, res)
}

// -- Patients --

// activeOnly reads the optional active_only query flag.
func activeOnly(c echo.Context) (bool, error) {
	raw := c.QueryParam("active_only")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "active_only must be a boolean")
	}
	return v, nil
}

func (h *Handler) ListPatients(c echo.Context) error {
	only, err := activeOnly(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForRegistry(c.Request().Context(), currentUser(c), c.Param("code"), only, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListUnallocated(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnallocated(c.Request().Context(), currentUser(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context) error {
	only, err := activeOnly(c)
	if err != nil {
		return err
	}
	code := c.Param("code")
	var buf bytes.Buffer
	if err := h.svc.ExportRegistry(c.Request().Context(), currentUser(c), code, only, &buf); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", code+"_patients.xlsx"))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	removed, err := h.svc.DeletePatient(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return httpError(err)
	}
	if removed {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": id, "active": false})
}

// -- Consents --

func (h *Handler) ListConsents(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListConsents(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UploadConsent(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > blobstore.MaxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, blobstore.ErrFileTooLarge.Error())
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, blobstore.MaxFileSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	consent, err := h.svc.UploadConsent(c.Request().Context(), currentUser(c), id, fh.Filename, contentType, data)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, consent)
}

func (h *Handler) DownloadConsent(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	consentID, err := parseUUID(c, "consent_id")
	if err != nil {
		return err
	}
	consent, blob, err := h.svc.DownloadConsent(c.Request().Context(), currentUser(c), id, consentID)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", consent.FileName))
	return c.Blob(http.StatusOK, consent.ContentType, blob.Data)
}

func (h *Handler) DeleteConsent(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	consentID, err := parseUUID(c, "consent_id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConsent(c.Request().Context(), currentUser(c), id, consentID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Parents --

func (h *Handler) ListParents(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListParents(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddParent(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	var pg ParentGuardian
	if err := c.Bind(&pg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg.ID = uuid.Nil
	if err := h.svc.AddParent(c.Request().Context(), currentUser(c), id, &pg); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, pg)
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Lookups --

func (h *Handler) States(c echo.Context) error {
	items, err := h.svc.States(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Relationships(c echo.Context) error {
	items, err := h.svc.Relationships(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddressTypes(c echo.Context) error {
	items, err := h.svc.AddressTypes(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) WorkingGroups(c echo.Context) error {
	items, err := h.svc.WorkingGroups(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateWorkingGroup(c echo.Context) error {
	var wg WorkingGroup
	if err := c.Bind(&wg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateWorkingGroup(c.Request().Context(), &wg); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, wg)
}

// -- Questionnaire approval --

func (h *Handler) ApproveQuestionnaire(c echo.Context) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.ApproveQuestionnaire(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

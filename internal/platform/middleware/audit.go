package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rdrf/rdrf/internal/platform/auth"
)

// AuditEntry records who touched which registry resource.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Site       string
	Resource   string
	PatientID  string
	Action     string
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request as a phi_access event, after the handler
// has run so the final status is known.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			u := auth.UserFromContext(req.Context())
			entry := AuditEntry{
				UserID:     u.ID,
				UserRoles:  u.Roles,
				Resource:   resourceFromPath(req.URL.Path),
				PatientID:  patientIDFromRequest(c),
				Action:     actionFromMethod(req.Method),
				IPAddress:  c.RealIP(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.Site, _ = c.Get("site_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("site", entry.Site).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func actionFromMethod(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath names the resource a request touches. Registry-scoped
// routes report the nested collection:
//
//	/api/v1/patients/123           -> patients
//	/api/v1/registries/DM1/patients -> patients
//	/api/v1/registries/DM1         -> registries
func resourceFromPath(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	if segments[0] == "registries" && len(segments) >= 3 {
		return segments[2]
	}
	return segments[0]
}

// patientIDFromRequest looks for a patient id in the route or query.
func patientIDFromRequest(c echo.Context) string {
	path := c.Path()
	if strings.Contains(path, "/patients/:id") {
		return c.Param("id")
	}
	if pid := c.QueryParam("patient_id"); pid != "" {
		return pid
	}
	segments := strings.Split(c.Request().URL.Path, "/")
	for i, s := range segments {
		if s == "patients" && i+1 < len(segments) {
			next := segments[i+1]
			switch next {
			case "", "new", "export", "unallocated":
				return ""
			}
			return next
		}
	}
	return ""
}

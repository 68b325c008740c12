package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rdrf/rdrf/internal/platform/auth"
)

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func TestHandler_CreateReview(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.patients)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registries/FH/reviews", strings.NewReader(`{"code":"followup","name":"Follow up","review_type":"V"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("FH")

	if err := h.CreateReview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"bad","name":"Bad","review_type":"Z"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("code")
	c.SetParamValues("FH")
	expectHTTPStatus(t, h.CreateReview(c), http.StatusBadRequest)
}

func TestHandler_SendReview(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.patients)
	e := echo.New()
	p := f.addPatient("SMITH", strPtr("parent-user"), nil)
	orphan := f.addPatient("ORPHAN", nil, nil)

	send := func(patientID uuid.UUID) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		admin := auth.User{ID: "root", Roles: []string{auth.RoleAdmin}}
		req = req.WithContext(auth.WithUser(context.Background(), admin))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("code", "id", "patient_id")
		c.SetParamValues("FH", f.parentReview.ID.String(), patientID.String())
		return rec, h.SendReview(c)
	}

	rec, err := send(p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(body["url"], "?t=") {
		t.Errorf("expected review url, got %v", body)
	}

	_, err = send(orphan.ID)
	expectHTTPStatus(t, err, http.StatusUnprocessableEntity)

	_, err = send(uuid.New())
	expectHTTPStatus(t, err, http.StatusNotFound)
}

func TestHandler_ReviewerEndpoints(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.patients)
	e := echo.New()
	p := f.addPatient("SMITH", strPtr("parent-user"), nil)
	url, err := f.svc.CreatePatientReview(context.Background(), f.parentReview, f.fh, p)
	if err != nil {
		t.Fatal(err)
	}
	token := url[strings.Index(url, "t=")+2:]

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/reviews?t="+token, nil), rec)
	if err := h.Open(c); err != nil {
		t.Fatalf("open: %v", err)
	}
	var view ReviewView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Review == nil || view.Review.Code != "annual" || len(view.PatientReview.Items) != 2 {
		t.Fatalf("unexpected view %s", rec.Body.String())
	}

	itemID := view.PatientReview.Items[0].ID
	req := httptest.NewRequest(http.MethodPut, "/reviews/items/"+itemID.String()+"?t="+token, strings.NewReader(`{"data":{"CDEWeight":"40"}}`))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(itemID.String())
	if err := h.UpdateItem(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"has_changed":true`) {
		t.Errorf("expected changed item, got %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/reviews/complete?t="+token, nil), httptest.NewRecorder())
	if err := h.Complete(c); err != nil {
		t.Fatalf("complete: %v", err)
	}
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/reviews/complete?t="+token, nil), httptest.NewRecorder())
	expectHTTPStatus(t, h.Complete(c), http.StatusConflict)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/reviews?t=nope", nil), httptest.NewRecorder())
	expectHTTPStatus(t, h.Open(c), http.StatusNotFound)
}

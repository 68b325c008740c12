package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path   string
		public bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/reviews", true},
		{"/reviews/items/:id", true},
		{"/reviews/complete", true},
		{"/api/v1/patients", false},
		{"/api/v1/rpc", false},
		{"/", false},
		{"/health/extra", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.public {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.public)
			}
			if got := IsPublicPath(tt.path); got != tt.public {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.public)
			}
		})
	}
}

func TestAuthOptional(t *testing.T) {
	const editPath = "/api/v1/registries/:code/patients/:id/edit"
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/registries/FH/patients/1/edit", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(editPath)
	if !AuthOptional(c) {
		t.Error("expected anonymous edit form request to be optional")
	}

	req.Header.Set("Authorization", "Bearer abc")
	if AuthOptional(c) {
		t.Error("a request with a token must be validated")
	}

	c.SetPath("/api/v1/patients/:id")
	req.Header.Del("Authorization")
	if AuthOptional(c) {
		t.Error("only listed paths are optional")
	}
}

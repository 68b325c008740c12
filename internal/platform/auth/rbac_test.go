package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithUser(u User) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), u))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithUser(User{ID: "u1", Roles: []string{RoleCurator}})
	if err := RequireRole(RoleCurator, RoleClinician)(okHandler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := contextWithUser(User{ID: "u1", Roles: []string{RoleParent}})
	err := RequireRole(RoleCurator, RoleClinician)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
	if msg := err.(*echo.HTTPError).Message; msg != "required role: curator or clinician" {
		t.Errorf("unexpected message: %v", msg)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := contextWithUser(User{ID: "root", Roles: []string{RoleAdmin}})
	if err := RequireRole(RoleDataEntry)(okHandler)(c); err != nil {
		t.Errorf("admin should bypass role checks: %v", err)
	}
}

func TestRequireRegistry(t *testing.T) {
	tests := []struct {
		name    string
		user    User
		code    string
		allowed bool
	}{
		{"member", User{ID: "u", Registries: []string{"DM1"}}, "DM1", true},
		{"non-member", User{ID: "u", Registries: []string{"DM1"}}, "FKRP", false},
		{"admin", User{ID: "u", Roles: []string{RoleAdmin}}, "FKRP", true},
		{"anonymous", User{}, "DM1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contextWithUser(tt.user)
			c.SetParamNames("code")
			c.SetParamValues(tt.code)

			err := RequireRegistry("code")(okHandler)(c)
			if tt.allowed && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.allowed {
				expectStatus(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestUser_Membership(t *testing.T) {
	u := User{ID: "u", Roles: []string{RoleClinician}, WorkingGroups: []string{"wg-a"}}
	if !u.Authenticated() {
		t.Error("expected authenticated")
	}
	if u.InWorkingGroup("wg-b") {
		t.Error("unexpected working group membership")
	}
	if u.IsSuperuser() {
		t.Error("clinician is not a superuser")
	}
}

package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newSiteContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractSiteID_Priority(t *testing.T) {
	c := newSiteContext("/?site_id=from_query")
	if got := extractSiteID(c, "default"); got != "from_query" {
		t.Errorf("expected from_query, got %s", got)
	}

	c.Request().Header.Set(SiteHeader, "from_header")
	if got := extractSiteID(c, "default"); got != "from_header" {
		t.Errorf("header should win over query, got %s", got)
	}

	c.Set("jwt_site_id", "from_jwt")
	if got := extractSiteID(c, "default"); got != "from_jwt" {
		t.Errorf("jwt claim should win, got %s", got)
	}
}

func TestExtractSiteID_Default(t *testing.T) {
	c := newSiteContext("/")
	c.Set("jwt_site_id", "")
	if got := extractSiteID(c, "default"); got != "default" {
		t.Errorf("expected default, got %s", got)
	}
}

func TestValidSiteID(t *testing.T) {
	valid := []string{"default", "dm1", "FKRP_2", "a"}
	invalid := []string{"", "bad-id", "x;DROP SCHEMA", "sp ace", "dot.ted"}

	for _, id := range valid {
		if !ValidSiteID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range invalid {
		if ValidSiteID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("dm1"); got != "site_dm1" {
		t.Errorf("expected site_dm1, got %s", got)
	}
}

func TestSiteFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), SiteIDKey, "dm1")
	if got := SiteFromContext(ctx); got != "dm1" {
		t.Errorf("expected dm1, got %s", got)
	}
	if got := SiteFromContext(context.Background()); got != "" {
		t.Errorf("expected empty, got %s", got)
	}
}

func TestConnFromContext_Nil(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil conn from empty context")
	}
}

func TestCreateSiteSchema_InvalidID(t *testing.T) {
	if err := CreateSiteSchema(context.Background(), nil, "invalid-id!", ""); err == nil {
		t.Error("expected error for invalid site ID")
	}
}

func TestScopeConn_InvalidID(t *testing.T) {
	if _, _, err := ScopeConn(context.Background(), nil, "no way"); err == nil {
		t.Error("expected error for invalid site ID")
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestInTx_NoConnection(t *testing.T) {
	err := InTx(context.Background(), nil, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("expected error without pool or connection")
	}
}

func TestIsNoRowsAndUniqueViolation(t *testing.T) {
	if IsNoRows(nil) {
		t.Error("nil is not no-rows")
	}
	if IsUniqueViolation(context.Canceled) {
		t.Error("context.Canceled is not a unique violation")
	}
}

func TestNoTx_CallsThrough(t *testing.T) {
	called := false
	var runner TxRunner = NoTx
	err := runner(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("expected fn to run, called=%v err=%v", called, err)
	}
}

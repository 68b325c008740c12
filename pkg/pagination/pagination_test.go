package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_LimitOffset(t *testing.T) {
	p := FromContext(contextFor("/?limit=10&offset=30"))
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("unexpected params: %+v", p)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := FromContext(contextFor("/?limit=25&page=3"))
	if p.Offset != 50 {
		t.Errorf("expected offset 50 for page 3, got %d", p.Offset)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	p := FromContext(contextFor("/?limit=1000&offset=-5"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset to be 0, got %d", p.Offset)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if r := NewResponse(nil, 50, 20, 20); !r.HasMore {
		t.Error("expected HasMore with 50 total at offset 20")
	}
	if r := NewResponse(nil, 40, 20, 20); r.HasMore {
		t.Error("expected no more results at the last page")
	}
}

func TestResponse_WithLinks(t *testing.T) {
	r := NewResponse(nil, 50, 20, 20).WithLinks("/api/v1/patients/unallocated")
	if r.Links.Self != "/api/v1/patients/unallocated?limit=20&offset=20" {
		t.Errorf("unexpected self link: %s", r.Links.Self)
	}
	if r.Links.Next != "/api/v1/patients/unallocated?limit=20&offset=40" {
		t.Errorf("unexpected next link: %s", r.Links.Next)
	}
	if r.Links.Previous != "/api/v1/patients/unallocated?limit=20&offset=0" {
		t.Errorf("unexpected previous link: %s", r.Links.Previous)
	}

	first := NewResponse(nil, 5, 20, 0).WithLinks("/x")
	if first.Links.Next != "" || first.Links.Previous != "" {
		t.Errorf("single page should have no neighbours: %+v", first.Links)
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Slice(items, Params{Limit: 2, Offset: 1}); len(got) != 2 || got[0] != 2 {
		t.Errorf("unexpected page: %v", got)
	}
	if got := Slice(items, Params{Limit: 10, Offset: 3}); len(got) != 2 {
		t.Errorf("expected truncated page, got %v", got)
	}
	if got := Slice(items, Params{Limit: 10, Offset: 9}); len(got) != 0 {
		t.Errorf("expected empty page, got %v", got)
	}
}

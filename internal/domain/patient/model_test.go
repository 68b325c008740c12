package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/platform/auth"
)

func TestPatient_Normalise(t *testing.T) {
	p := &Patient{FamilyName: "  o'brien  smith ", GivenNames: " mary   jane "}
	p.Normalise()
	if p.FamilyName != "O'BRIEN SMITH" || p.GivenNames != "mary jane" {
		t.Errorf("unexpected %q %q", p.FamilyName, p.GivenNames)
	}
}

func TestPatient_String(t *testing.T) {
	p := &Patient{FamilyName: "Smith", GivenNames: "John", Active: true}
	if p.String() != "SMITH John" {
		t.Errorf("unexpected %q", p.String())
	}
	p.Active = false
	if p.String() != "SMITH John (Archived)" {
		t.Errorf("unexpected %q", p.String())
	}
}

func TestPatient_RegistryListAndAsJSON(t *testing.T) {
	id := uuid.New()
	p := &Patient{
		ID:               id,
		FamilyName:       "SMITH",
		GivenNames:       "John",
		WorkingGroupName: "WA",
		DateOfBirth:      time.Date(1980, 2, 1, 0, 0, 0, 0, time.UTC),
		Registries:       []RegistryRef{{Code: "FH", Name: "FH Registry"}, {Code: "DM1", Name: "DM1 Registry"}},
	}
	if got := p.RegistryList(); got != "FH Registry, DM1 Registry" {
		t.Errorf("unexpected registry list %q", got)
	}
	j := p.AsJSON()
	if j["obj_id"] != id || j["working_group"] != "WA" || j["date_of_birth"] != "1980-02-01" {
		t.Errorf("unexpected json %v", j)
	}
}

func TestCanAccess_UnallocatedPatient(t *testing.T) {
	wg := uuid.New()
	p := &Patient{WorkingGroupID: wg}
	u := auth.User{ID: "c", Roles: []string{auth.RoleClinician}, WorkingGroups: []string{wg.String()}}
	if !CanAccess(u, p) {
		t.Error("working group member should reach an unallocated patient")
	}
}

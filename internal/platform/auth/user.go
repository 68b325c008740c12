package auth

import "slices"

const (
	RoleAdmin     = "admin"
	RoleCurator   = "curator"
	RoleClinician = "clinician"
	RoleDataEntry = "data_entry"
	RolePatient   = "patient"
	RoleParent    = "parent"
)

// User is the caller of a request as described by its token.
type User struct {
	ID            string
	Roles         []string
	Registries    []string
	WorkingGroups []string
	IsPatient     bool
}

func (u User) Authenticated() bool {
	return u.ID != ""
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// IsSuperuser users see every registry and working group.
func (u User) IsSuperuser() bool {
	return u.HasRole(RoleAdmin)
}

// InRegistry reports whether the user belongs to the registry with code.
func (u User) InRegistry(code string) bool {
	return u.IsSuperuser() || slices.Contains(u.Registries, code)
}

func (u User) InWorkingGroup(id string) bool {
	return u.IsSuperuser() || slices.Contains(u.WorkingGroups, id)
}

func (u User) IsClinician() bool {
	return u.HasRole(RoleClinician)
}

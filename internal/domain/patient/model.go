package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicatePatient  = errors.New("a patient with this name already exists in the working group")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalid           = errors.New("invalid input")
	ErrRegistryNotExists = errors.New("registry does not exist")
)

const dateLayout = "2006-01-02"

// RegistryRef is the slice of a registry a patient record carries.
type RegistryRef struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

type Patient struct {
	ID                          uuid.UUID              `db:"id" json:"id"`
	WorkingGroupID              uuid.UUID              `db:"working_group_id" json:"working_group_id"`
	WorkingGroupName            string                 `db:"-" json:"working_group,omitempty"`
	Registries                  []RegistryRef          `db:"-" json:"registries"`
	Consent                     bool                   `db:"consent" json:"consent"`
	ConsentClinicalTrials       bool                   `db:"consent_clinical_trials" json:"consent_clinical_trials"`
	ConsentSentInformation      bool                   `db:"consent_sent_information" json:"consent_sent_information"`
	FamilyName                  string                 `db:"family_name" json:"family_name"`
	GivenNames                  string                 `db:"given_names" json:"given_names"`
	MaidenName                  *string                `db:"maiden_name" json:"maiden_name,omitempty"`
	UMRN                        *string                `db:"umrn" json:"umrn,omitempty"`
	DateOfBirth                 time.Time              `db:"date_of_birth" json:"date_of_birth"`
	PlaceOfBirth                *string                `db:"place_of_birth" json:"place_of_birth,omitempty"`
	CountryOfBirth              *string                `db:"country_of_birth" json:"country_of_birth,omitempty"`
	EthnicOrigin                *string                `db:"ethnic_origin" json:"ethnic_origin,omitempty"`
	DateOfMigration             *time.Time             `db:"date_of_migration" json:"date_of_migration,omitempty"`
	Sex                         string                 `db:"sex" json:"sex"`
	HomePhone                   *string                `db:"home_phone" json:"home_phone,omitempty"`
	MobilePhone                 *string                `db:"mobile_phone" json:"mobile_phone,omitempty"`
	WorkPhone                   *string                `db:"work_phone" json:"work_phone,omitempty"`
	Email                       *string                `db:"email" json:"email,omitempty"`
	NextOfKinFamilyName         *string                `db:"next_of_kin_family_name" json:"next_of_kin_family_name,omitempty"`
	NextOfKinGivenNames         *string                `db:"next_of_kin_given_names" json:"next_of_kin_given_names,omitempty"`
	NextOfKinRelationship       *string                `db:"next_of_kin_relationship" json:"next_of_kin_relationship,omitempty"`
	NextOfKinAddress            *string                `db:"next_of_kin_address" json:"next_of_kin_address,omitempty"`
	NextOfKinSuburb             *string                `db:"next_of_kin_suburb" json:"next_of_kin_suburb,omitempty"`
	NextOfKinState              *string                `db:"next_of_kin_state" json:"next_of_kin_state,omitempty"`
	NextOfKinPostcode           *string                `db:"next_of_kin_postcode" json:"next_of_kin_postcode,omitempty"`
	NextOfKinHomePhone          *string                `db:"next_of_kin_home_phone" json:"next_of_kin_home_phone,omitempty"`
	NextOfKinMobilePhone        *string                `db:"next_of_kin_mobile_phone" json:"next_of_kin_mobile_phone,omitempty"`
	NextOfKinWorkPhone          *string                `db:"next_of_kin_work_phone" json:"next_of_kin_work_phone,omitempty"`
	NextOfKinEmail              *string                `db:"next_of_kin_email" json:"next_of_kin_email,omitempty"`
	NextOfKinParentPlaceOfBirth *string                `db:"next_of_kin_parent_place_of_birth" json:"next_of_kin_parent_place_of_birth,omitempty"`
	ClinicianUserID             *string                `db:"clinician_user_id" json:"clinician,omitempty"`
	UserID                      *string                `db:"user_id" json:"user_id,omitempty"`
	Active                      bool                   `db:"active" json:"active"`
	InactiveReason              *string                `db:"inactive_reason" json:"inactive_reason,omitempty"`
	CDEValues                   map[string]interface{} `db:"cde_values" json:"cde_values"`
	CreatedAt                   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time              `db:"updated_at" json:"updated_at"`
}

// Normalise collapses whitespace in the names and upper-cases the family name.
func (p *Patient) Normalise() {
	p.FamilyName = strings.ToUpper(collapse(p.FamilyName))
	p.GivenNames = collapse(p.GivenNames)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (p *Patient) String() string {
	name := fmt.Sprintf("%s %s", strings.ToUpper(p.FamilyName), p.GivenNames)
	if !p.Active {
		name += " (Archived)"
	}
	return name
}

// RegistryList joins the names of the patient's registries.
func (p *Patient) RegistryList() string {
	names := make([]string, 0, len(p.Registries))
	for _, r := range p.Registries {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

// InRegistry reports whether the patient belongs to the registry code.
func (p *Patient) InRegistry(code string) bool {
	for _, r := range p.Registries {
		if r.Code == code {
			return true
		}
	}
	return false
}

// AsJSON is the compact form used by patient pickers.
func (p *Patient) AsJSON() map[string]interface{} {
	return map[string]interface{}{
		"obj_id":        p.ID,
		"given_names":   p.GivenNames,
		"family_name":   p.FamilyName,
		"working_group": p.WorkingGroupName,
		"date_of_birth": p.DateOfBirth.Format(dateLayout),
	}
}

type Doctor struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FamilyName  string    `db:"family_name" json:"family_name"`
	GivenNames  string    `db:"given_names" json:"given_names"`
	SurgeryName string    `db:"surgery_name" json:"surgery_name"`
	Speciality  string    `db:"speciality" json:"speciality"`
	Address     string    `db:"address" json:"address"`
	Suburb      string    `db:"suburb" json:"suburb"`
	State       *string   `db:"state" json:"state,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (d *Doctor) String() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(d.FamilyName), d.GivenNames)
}

type PatientAddress struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	AddressTypeID *uuid.UUID `db:"address_type_id" json:"address_type,omitempty"`
	Address       string     `db:"address" json:"address"`
	Suburb        string     `db:"suburb" json:"suburb"`
	State         *string    `db:"state" json:"state,omitempty"`
	Postcode      string     `db:"postcode" json:"postcode"`
	Country       string     `db:"country" json:"country"`
}

type PatientDoctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor"`
	Relationship string    `db:"relationship" json:"relationship"`
}

type PatientConsent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	FileName    string    `db:"filename" json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	StorageKey  string    `db:"storage_key" json:"-"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

type ParentGuardian struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	FamilyName string    `db:"family_name" json:"family_name"`
	GivenNames string    `db:"given_names" json:"given_names"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// -- Lookups --

type State struct {
	ShortName string `db:"short_name" json:"short_name"`
	Name      string `db:"name" json:"name"`
}

type NextOfKinRelationship struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Relationship string    `db:"relationship" json:"relationship"`
}

type AddressType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
}

type WorkingGroup struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Filter narrows patient lists. Empty slices mean no restriction. Archived
// patients are listed unless ActiveOnly is set.
type Filter struct {
	RegistryCodes   []string
	WorkingGroupIDs []uuid.UUID
	Unallocated     bool
	ActiveOnly      bool
}

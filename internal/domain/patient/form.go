package patient

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/domain/registry"
)

// Field kinds understood by clients rendering the form.
const (
	KindText         = "text"
	KindBoolean      = "boolean"
	KindDate         = "date"
	KindChoice       = "choice"
	KindEmail        = "email"
	KindRegistries   = "registries"
	KindWorkingGroup = "working_group"
	KindUser         = "user"
	KindCDE          = "cde"
)

// Form prefixes. Formset errors are keyed "<prefix>-<row>-<field>".
const (
	PrefixPatient = "patient"
	PrefixAddress = "patient_address"
	PrefixDoctor  = "patient_doctor"
)

const msgRequired = "This field is required."

type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldSpec describes one input on the patient form.
type FieldSpec struct {
	Name      string                      `json:"name"`
	Label     string                      `json:"label"`
	Kind      string                      `json:"kind"`
	Required  bool                        `json:"required"`
	MaxLength int                         `json:"max_length,omitempty"`
	Choices   []Choice                    `json:"choices,omitempty"`
	CDE       *registry.CommonDataElement `json:"cde,omitempty"`
}

var (
	ConsentFields = []string{"consent", "consent_clinical_trials", "consent_sent_information"}

	RegistryFields = []string{"rdrf_registry", "working_groups", "clinician"}

	PersonalDetailFields = []string{
		"family_name", "given_names", "maiden_name", "umrn", "date_of_birth",
		"place_of_birth", "country_of_birth", "ethnic_origin", "sex",
		"home_phone", "mobile_phone", "work_phone", "email",
	}

	NextOfKinFields = []string{
		"next_of_kin_family_name", "next_of_kin_given_names", "next_of_kin_relationship",
		"next_of_kin_address", "next_of_kin_suburb", "next_of_kin_state", "next_of_kin_postcode",
		"next_of_kin_home_phone", "next_of_kin_mobile_phone", "next_of_kin_work_phone",
		"next_of_kin_email", "next_of_kin_parent_place_of_birth",
	}
)

// BaseFields is the fixed part of the patient form, in layout order.
var BaseFields = []FieldSpec{
	{Name: "consent", Label: "Consent given to store data only while individual is living", Kind: KindBoolean},
	{Name: "consent_clinical_trials", Label: "Consent given to be contacted about clinical trials or other studies related to their condition", Kind: KindBoolean},
	{Name: "consent_sent_information", Label: "Consent given to be sent information on their condition", Kind: KindBoolean},
	{Name: "rdrf_registry", Label: "Registry", Kind: KindRegistries},
	{Name: "working_groups", Label: "Working Group", Kind: KindWorkingGroup, Required: true},
	{Name: "clinician", Label: "Clinician", Kind: KindUser},
	{Name: "family_name", Label: "Family name", Kind: KindText, Required: true, MaxLength: 100},
	{Name: "given_names", Label: "Given names", Kind: KindText, Required: true, MaxLength: 100},
	{Name: "maiden_name", Label: "Maiden name (if applicable)", Kind: KindText, MaxLength: 100},
	{Name: "umrn", Label: "Hospital/Clinic ID", Kind: KindText, MaxLength: 50},
	{Name: "date_of_birth", Label: "Date of birth", Kind: KindDate, Required: true},
	{Name: "place_of_birth", Label: "Place of birth", Kind: KindText, MaxLength: 100},
	{Name: "country_of_birth", Label: "Country of birth", Kind: KindText, MaxLength: 100},
	{Name: "ethnic_origin", Label: "Ethnic origin", Kind: KindText, MaxLength: 250},
	{Name: "sex", Label: "Sex", Kind: KindChoice, Required: true},
	{Name: "home_phone", Label: "Home phone", Kind: KindText, MaxLength: 30},
	{Name: "mobile_phone", Label: "Mobile phone", Kind: KindText, MaxLength: 30},
	{Name: "work_phone", Label: "Work phone", Kind: KindText, MaxLength: 30},
	{Name: "email", Label: "Email", Kind: KindEmail, MaxLength: 254},
	{Name: "next_of_kin_family_name", Label: "Family name", Kind: KindText, MaxLength: 100},
	{Name: "next_of_kin_given_names", Label: "Given names", Kind: KindText, MaxLength: 100},
	{Name: "next_of_kin_relationship", Label: "Relationship", Kind: KindText, MaxLength: 100},
	{Name: "next_of_kin_address", Label: "Address", Kind: KindText},
	{Name: "next_of_kin_suburb", Label: "Suburb/Town", Kind: KindText, MaxLength: 50},
	{Name: "next_of_kin_state", Label: "State/Province/Territory", Kind: KindText, MaxLength: 3},
	{Name: "next_of_kin_postcode", Label: "Postcode", Kind: KindText, MaxLength: 20},
	{Name: "next_of_kin_home_phone", Label: "Home phone", Kind: KindText, MaxLength: 30},
	{Name: "next_of_kin_mobile_phone", Label: "Mobile phone", Kind: KindText, MaxLength: 30},
	{Name: "next_of_kin_work_phone", Label: "Work phone", Kind: KindText, MaxLength: 30},
	{Name: "next_of_kin_email", Label: "Email", Kind: KindEmail, MaxLength: 254},
	{Name: "next_of_kin_parent_place_of_birth", Label: "Place of birth of parents", Kind: KindText, MaxLength: 100},
}

var sexLabels = map[string]string{"M": "Male", "F": "Female", "X": "Other/Intersex"}

// Extension is the set of CDE fields one registry adds to the form.
type Extension struct {
	RegistryCode string
	Elements     []registry.CommonDataElement
}

func (e Extension) Title() string {
	return fmt.Sprintf("%s Specific Fields", strings.ToUpper(e.RegistryCode))
}

// PatientForm is BaseFields plus the configured registry extensions.
type PatientForm struct {
	Fields     []FieldSpec
	Extensions []Extension
}

// NewPatientForm builds the form for an installation's sex choices and the
// given registry extensions.
func NewPatientForm(sexChoices []string, extensions []Extension) *PatientForm {
	f := &PatientForm{Extensions: extensions}
	for _, spec := range BaseFields {
		if spec.Name == "sex" {
			spec.Choices = make([]Choice, 0, len(sexChoices))
			for _, code := range sexChoices {
				spec.Choices = append(spec.Choices, Choice{Value: code, Label: sexLabels[code]})
			}
		}
		f.Fields = append(f.Fields, spec)
	}
	seen := map[string]bool{}
	for _, ext := range extensions {
		for i := range ext.Elements {
			cde := ext.Elements[i]
			if seen[cde.Code] {
				continue
			}
			seen[cde.Code] = true
			f.Fields = append(f.Fields, FieldSpec{
				Name:     cde.Code,
				Label:    cde.Name,
				Kind:     KindCDE,
				Required: cde.IsRequired,
				CDE:      &cde,
			})
		}
	}
	return f
}

// ExtensionElements lists each extension CDE once, in form order.
func (f *PatientForm) ExtensionElements() []registry.CommonDataElement {
	var out []registry.CommonDataElement
	for _, spec := range f.Fields {
		if spec.CDE != nil {
			out = append(out, *spec.CDE)
		}
	}
	return out
}

func (f *PatientForm) sexAllowed(code string) bool {
	for _, spec := range f.Fields {
		if spec.Name != "sex" {
			continue
		}
		for _, c := range spec.Choices {
			if c.Value == code {
				return true
			}
		}
	}
	return false
}

// -- Layout --

type LayoutSection struct {
	Title  string   `json:"title"`
	Fields []string `json:"fields,omitempty"`
}

// FormBlock is one form or formset with the sections rendered from it.
type FormBlock struct {
	Prefix   string          `json:"prefix"`
	Sections []LayoutSection `json:"sections"`
	Fields   []FieldSpec     `json:"fields,omitempty"`
	Data     interface{}     `json:"data"`
}

// Layout orders the patient form into sections. The doctor formset is only
// included when the registry asks for it.
func (f *PatientForm) Layout(reg *registry.Registry, patientData map[string]interface{}, addresses, doctors interface{}) []FormBlock {
	sections := []LayoutSection{
		{Title: "Consent", Fields: ConsentFields},
		{Title: "Registry", Fields: RegistryFields},
		{Title: "Personal Details", Fields: PersonalDetailFields},
		{Title: "Next of Kin", Fields: NextOfKinFields},
	}
	for _, ext := range f.Extensions {
		if len(ext.Elements) == 0 {
			continue
		}
		codes := make([]string, 0, len(ext.Elements))
		for _, cde := range ext.Elements {
			codes = append(codes, cde.Code)
		}
		sections = append(sections, LayoutSection{Title: ext.Title(), Fields: codes})
	}

	blocks := []FormBlock{
		{Prefix: PrefixPatient, Sections: sections, Fields: f.Fields, Data: patientData},
		{Prefix: PrefixAddress, Sections: []LayoutSection{{Title: "Patient Address"}}, Data: nonNil(addresses)},
	}
	if reg != nil && reg.MetadataBool(registry.MetaPatientFormDoctors) {
		blocks = append(blocks, FormBlock{
			Prefix:   PrefixDoctor,
			Sections: []LayoutSection{{Title: "Patient Doctor"}},
			Data:     nonNil(doctors),
		})
	}
	return blocks
}

func nonNil(v interface{}) interface{} {
	if v == nil {
		return []interface{}{}
	}
	return v
}

// Values renders p as form values.
func Values(p *Patient) map[string]interface{} {
	v := map[string]interface{}{
		"consent":                           p.Consent,
		"consent_clinical_trials":           p.ConsentClinicalTrials,
		"consent_sent_information":          p.ConsentSentInformation,
		"working_groups":                    p.WorkingGroupID.String(),
		"clinician":                         deref(p.ClinicianUserID),
		"family_name":                       p.FamilyName,
		"given_names":                       p.GivenNames,
		"maiden_name":                       deref(p.MaidenName),
		"umrn":                              deref(p.UMRN),
		"date_of_birth":                     formatDate(p.DateOfBirth),
		"place_of_birth":                    deref(p.PlaceOfBirth),
		"country_of_birth":                  deref(p.CountryOfBirth),
		"ethnic_origin":                     deref(p.EthnicOrigin),
		"sex":                               p.Sex,
		"home_phone":                        deref(p.HomePhone),
		"mobile_phone":                      deref(p.MobilePhone),
		"work_phone":                        deref(p.WorkPhone),
		"email":                             deref(p.Email),
		"next_of_kin_family_name":           deref(p.NextOfKinFamilyName),
		"next_of_kin_given_names":           deref(p.NextOfKinGivenNames),
		"next_of_kin_relationship":          deref(p.NextOfKinRelationship),
		"next_of_kin_address":               deref(p.NextOfKinAddress),
		"next_of_kin_suburb":                deref(p.NextOfKinSuburb),
		"next_of_kin_state":                 deref(p.NextOfKinState),
		"next_of_kin_postcode":              deref(p.NextOfKinPostcode),
		"next_of_kin_home_phone":            deref(p.NextOfKinHomePhone),
		"next_of_kin_mobile_phone":          deref(p.NextOfKinMobilePhone),
		"next_of_kin_work_phone":            deref(p.NextOfKinWorkPhone),
		"next_of_kin_email":                 deref(p.NextOfKinEmail),
		"next_of_kin_parent_place_of_birth": deref(p.NextOfKinParentPlaceOfBirth),
	}
	if p.DateOfMigration != nil {
		v["date_of_migration"] = formatDate(*p.DateOfMigration)
	}
	codes := make([]string, 0, len(p.Registries))
	for _, r := range p.Registries {
		codes = append(codes, r.Code)
	}
	v["rdrf_registry"] = codes
	for code, val := range p.CDEValues {
		v[code] = val
	}
	return v
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// -- Decoding --

// decodeBase copies the base field values onto p. Problems are added to errs.
// It returns the requested registry codes and working group id.
func (f *PatientForm) decodeBase(values map[string]interface{}, p *Patient, errs registry.FieldErrors) ([]string, uuid.UUID) {
	p.Consent = boolValue(values["consent"])
	p.ConsentClinicalTrials = boolValue(values["consent_clinical_trials"])
	p.ConsentSentInformation = boolValue(values["consent_sent_information"])

	for _, spec := range f.Fields {
		if spec.Kind != KindText && spec.Kind != KindEmail {
			continue
		}
		s := stringValue(values[spec.Name])
		if spec.Required && s == "" {
			errs.Add(spec.Name, msgRequired)
			continue
		}
		if spec.MaxLength > 0 && len([]rune(s)) > spec.MaxLength {
			errs.Add(spec.Name, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", spec.MaxLength, len([]rune(s))))
			continue
		}
		if spec.Kind == KindEmail && s != "" {
			if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
				errs.Add(spec.Name, "Enter a valid email address.")
				continue
			}
		}
		setText(p, spec.Name, s)
	}

	switch s := stringValue(values["date_of_birth"]); {
	case s == "":
		errs.Add("date_of_birth", msgRequired)
	default:
		if d, ok := registry.ParseDate(s); ok {
			p.DateOfBirth = d
		} else {
			errs.Add("date_of_birth", "Enter a valid date.")
		}
	}
	p.DateOfMigration = nil
	if s := stringValue(values["date_of_migration"]); s != "" {
		if d, ok := registry.ParseDate(s); ok {
			p.DateOfMigration = &d
		} else {
			errs.Add("date_of_migration", "Enter a valid date.")
		}
	}

	sex := strings.ToUpper(stringValue(values["sex"]))
	switch {
	case sex == "":
		errs.Add("sex", msgRequired)
	case !f.sexAllowed(sex):
		errs.Add("sex", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", sex))
	default:
		p.Sex = sex
	}

	p.ClinicianUserID = optional(stringValue(values["clinician"]))

	var wgID uuid.UUID
	wg := listValue(values["working_groups"])
	switch {
	case len(wg) == 0:
		errs.Add("working_groups", msgRequired)
	case len(wg) > 1:
		errs.Add("working_groups", "Select a single working group.")
	default:
		id, err := uuid.Parse(wg[0])
		if err != nil {
			errs.Add("working_groups", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", wg[0]))
		} else {
			wgID = id
		}
	}

	return listValue(values["rdrf_registry"]), wgID
}

func setText(p *Patient, name, s string) {
	switch name {
	case "family_name":
		p.FamilyName = s
	case "given_names":
		p.GivenNames = s
	case "maiden_name":
		p.MaidenName = optional(s)
	case "umrn":
		p.UMRN = optional(s)
	case "place_of_birth":
		p.PlaceOfBirth = optional(s)
	case "country_of_birth":
		p.CountryOfBirth = optional(s)
	case "ethnic_origin":
		p.EthnicOrigin = optional(s)
	case "home_phone":
		p.HomePhone = optional(s)
	case "mobile_phone":
		p.MobilePhone = optional(s)
	case "work_phone":
		p.WorkPhone = optional(s)
	case "email":
		p.Email = optional(s)
	case "next_of_kin_family_name":
		p.NextOfKinFamilyName = optional(s)
	case "next_of_kin_given_names":
		p.NextOfKinGivenNames = optional(s)
	case "next_of_kin_relationship":
		p.NextOfKinRelationship = optional(s)
	case "next_of_kin_address":
		p.NextOfKinAddress = optional(s)
	case "next_of_kin_suburb":
		p.NextOfKinSuburb = optional(s)
	case "next_of_kin_state":
		p.NextOfKinState = optional(s)
	case "next_of_kin_postcode":
		p.NextOfKinPostcode = optional(s)
	case "next_of_kin_home_phone":
		p.NextOfKinHomePhone = optional(s)
	case "next_of_kin_mobile_phone":
		p.NextOfKinMobilePhone = optional(s)
	case "next_of_kin_work_phone":
		p.NextOfKinWorkPhone = optional(s)
	case "next_of_kin_email":
		p.NextOfKinEmail = optional(s)
	case "next_of_kin_parent_place_of_birth":
		p.NextOfKinParentPlaceOfBirth = optional(s)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(tv)
	case []interface{}:
		if len(tv) == 1 {
			return stringValue(tv[0])
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(tv))
	}
}

func listValue(v interface{}) []string {
	switch tv := v.(type) {
	case nil:
		return nil
	case []interface{}:
		var out []string
		for _, item := range tv {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		var out []string
		for _, s := range tv {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return registry.SplitCodes(stringValue(tv))
	}
}

func boolValue(v interface{}) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case string:
		switch strings.ToLower(strings.TrimSpace(tv)) {
		case "true", "on", "yes", "1":
			return true
		}
	case float64:
		return tv != 0
	}
	return false
}

// -- Formsets --

// AddressRow is one submitted row of the address formset.
type AddressRow struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	AddressType *uuid.UUID `json:"address_type,omitempty"`
	Address     string     `json:"address"`
	Suburb      string     `json:"suburb"`
	State       string     `json:"state"`
	Postcode    string     `json:"postcode"`
	Country     string     `json:"country"`
	Delete      bool       `json:"delete,omitempty"`
}

// DoctorRow is one submitted row of the doctor formset.
type DoctorRow struct {
	ID           *uuid.UUID `json:"id,omitempty"`
	Doctor       *uuid.UUID `json:"doctor"`
	Relationship string     `json:"relationship"`
	Delete       bool       `json:"delete,omitempty"`
}

// Submission is the body of a patient add or edit.
type Submission struct {
	Patient   map[string]interface{} `json:"patient"`
	Addresses []AddressRow           `json:"patient_address"`
	Doctors   []DoctorRow            `json:"patient_doctor"`
}

func rowKey(prefix string, i int, field string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, i, field)
}

// validateAddresses checks every non-deleted row. knownStates may be nil to
// skip the state check.
func validateAddresses(rows []AddressRow, knownStates map[string]bool, errs registry.FieldErrors) {
	for i, row := range rows {
		if row.Delete {
			continue
		}
		if strings.TrimSpace(row.Address) == "" {
			errs.Add(rowKey(PrefixAddress, i, "address"), msgRequired)
		}
		if strings.TrimSpace(row.Suburb) == "" {
			errs.Add(rowKey(PrefixAddress, i, "suburb"), msgRequired)
		}
		if strings.TrimSpace(row.Postcode) == "" {
			errs.Add(rowKey(PrefixAddress, i, "postcode"), msgRequired)
		} else if len(row.Postcode) > 20 {
			errs.Add(rowKey(PrefixAddress, i, "postcode"), "Ensure this value has at most 20 characters.")
		}
		if strings.TrimSpace(row.Country) == "" {
			errs.Add(rowKey(PrefixAddress, i, "country"), msgRequired)
		}
		if st := strings.TrimSpace(row.State); st != "" && knownStates != nil && !knownStates[st] {
			errs.Add(rowKey(PrefixAddress, i, "state"), fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", st))
		}
	}
}

func (row AddressRow) toModel(patientID uuid.UUID) *PatientAddress {
	a := &PatientAddress{
		PatientID:     patientID,
		AddressTypeID: row.AddressType,
		Address:       strings.TrimSpace(row.Address),
		Suburb:        strings.TrimSpace(row.Suburb),
		State:         optional(strings.TrimSpace(row.State)),
		Postcode:      strings.TrimSpace(row.Postcode),
		Country:       strings.TrimSpace(row.Country),
	}
	if row.ID != nil {
		a.ID = *row.ID
	}
	return a
}

func (row DoctorRow) toModel(patientID uuid.UUID) *PatientDoctor {
	pd := &PatientDoctor{PatientID: patientID, Relationship: strings.TrimSpace(row.Relationship)}
	if row.Doctor != nil {
		pd.DoctorID = *row.Doctor
	}
	if row.ID != nil {
		pd.ID = *row.ID
	}
	return pd
}

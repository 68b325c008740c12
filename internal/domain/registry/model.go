package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrNoQuestionnaire  = errors.New("registry has no questionnaire form")
	ErrMultipleFound    = errors.New("multiple questionnaire forms found")
	ErrAlreadyProcessed = errors.New("questionnaire response already processed")
	ErrInvalid          = errors.New("invalid input")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Metadata keys understood by the registry.
const (
	MetaPatientFormDoctors = "patient_form_doctors"
	MetaPatientFields      = "patient_fields"
)

// Registry is one disease registry hosted by the installation.
type Registry struct {
	ID                  uuid.UUID              `db:"id" json:"id"`
	Name                string                 `db:"name" json:"name"`
	Code                string                 `db:"code" json:"code"`
	Description         string                 `db:"description" json:"desc"`
	SplashScreen        string                 `db:"splash_screen" json:"splash_screen"`
	PatientSplashScreen string                 `db:"patient_splash_screen" json:"patient_splash_screen"`
	Metadata            map[string]interface{} `db:"metadata" json:"metadata"`
	CreatedAt           time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time              `db:"updated_at" json:"updated_at"`
}

func (r *Registry) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Code)
}

// MetadataItem returns the metadata value for key, or false when unset.
func (r *Registry) MetadataItem(key string) interface{} {
	if v, ok := r.Metadata[key]; ok {
		return v
	}
	return false
}

// MetadataBool reads a boolean metadata flag. Non-boolean values count as
// set when they are non-empty.
func (r *Registry) MetadataBool(key string) bool {
	switch v := r.MetadataItem(key).(type) {
	case bool:
		return v
	case string:
		return v != "" && !strings.EqualFold(v, "false")
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// PatientFields lists the CDE codes this registry adds to the patient form.
// The metadata value may be a JSON list or a comma-separated string.
func (r *Registry) PatientFields() []string {
	switch v := r.Metadata[MetaPatientFields].(type) {
	case string:
		return SplitCodes(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

// PermittedValueGroup names a set of permitted values.
type PermittedValueGroup struct {
	Code string `db:"code" json:"code"`
}

type PermittedValue struct {
	ID          uuid.UUID `db:"id" json:"id"`
	GroupCode   string    `db:"pv_group" json:"pv_group"`
	Code        string    `db:"code" json:"code"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"desc,omitempty"`
	Position    *int      `db:"position" json:"position,omitempty"`
}

// CommonDataElement is a reusable field definition.
type CommonDataElement struct {
	Code              string   `db:"code" json:"code"`
	Name              string   `db:"name" json:"name"`
	Description       string   `db:"description" json:"desc"`
	Datatype          string   `db:"datatype" json:"datatype"`
	Instructions      string   `db:"instructions" json:"instructions"`
	PVGroup           *string  `db:"pv_group" json:"pv_group,omitempty"`
	AllowMultiple     bool     `db:"allow_multiple" json:"allow_multiple"`
	MaxLength         *int     `db:"max_length" json:"max_length,omitempty"`
	MaxValue          *float64 `db:"max_value" json:"max_value,omitempty"`
	MinValue          *float64 `db:"min_value" json:"min_value,omitempty"`
	IsRequired        bool     `db:"is_required" json:"is_required"`
	Pattern           string   `db:"pattern" json:"pattern"`
	WidgetName        string   `db:"widget_name" json:"widget_name"`
	Calculation       string   `db:"calculation" json:"calculation"`
	QuestionnaireText string   `db:"questionnaire_text" json:"questionnaire_text"`
}

// RegistryForm is an ordered group of sections.
type RegistryForm struct {
	ID              uuid.UUID `db:"id" json:"id"`
	RegistryID      uuid.UUID `db:"registry_id" json:"registry_id"`
	Name            string    `db:"name" json:"name"`
	Sections        string    `db:"sections" json:"sections"`
	IsQuestionnaire bool      `db:"is_questionnaire" json:"is_questionnaire"`
	Position        int       `db:"position" json:"position"`
}

func (f *RegistryForm) SectionCodes() []string {
	return SplitCodes(f.Sections)
}

// Section is a group of CDEs shown together on a form.
type Section struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	Elements      string    `db:"elements" json:"elements"`
	AllowMultiple bool      `db:"allow_multiple" json:"allow_multiple"`
	Extra         *int      `db:"extra" json:"extra,omitempty"`
}

func (s *Section) ElementCodes() []string {
	return SplitCodes(s.Elements)
}

// Wizard chains forms. Rules are stored for display only.
type Wizard struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Registry string    `db:"registry" json:"registry"`
	Forms    string    `db:"forms" json:"forms"`
	Rules    string    `db:"rules" json:"rules"`
}

func (w *Wizard) FormNames() []string {
	return SplitCodes(w.Forms)
}

// QuestionnaireResponse is a public questionnaire submission awaiting review.
type QuestionnaireResponse struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	RegistryID    uuid.UUID              `db:"registry_id" json:"registry_id"`
	DateSubmitted time.Time              `db:"date_submitted" json:"date_submitted"`
	Processed     bool                   `db:"processed" json:"processed"`
	PatientID     *uuid.UUID             `db:"patient_id" json:"patient_id,omitempty"`
	Answers       map[string]interface{} `db:"answers" json:"answers"`
}

// FormDefinition is a form with its sections and their CDEs resolved.
type FormDefinition struct {
	Form     RegistryForm        `json:"form"`
	Registry string              `json:"registry"`
	Sections []SectionDefinition `json:"sections"`
}

type SectionDefinition struct {
	Section  Section             `json:"section"`
	Elements []CommonDataElement `json:"elements"`
}

// Elements flattens every CDE on the form in display order.
func (d *FormDefinition) Elements() []CommonDataElement {
	var out []CommonDataElement
	for _, s := range d.Sections {
		out = append(out, s.Elements...)
	}
	return out
}

// SplitCodes splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func SplitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FieldErrors collects validation messages per field.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func (fe FieldErrors) Merge(prefix string, other FieldErrors) {
	for k, msgs := range other {
		fe[prefix+k] = append(fe[prefix+k], msgs...)
	}
}

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fe[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Err returns fe as an error, or nil when there is nothing to report.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

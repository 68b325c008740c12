package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/events"
)

const (
	fieldAll     = "__all__"
	msgDuplicate = "Patient with this Family name, Given names and Working group already exists."
)

// FormResult is the response to viewing or submitting the patient form.
type FormResult struct {
	Forms        []FormBlock          `json:"forms"`
	Patient      *Patient             `json:"patient,omitempty"`
	RegistryCode string               `json:"registry_code"`
	Message      string               `json:"message,omitempty"`
	Errors       bool                 `json:"errors"`
	FieldErrors  registry.FieldErrors `json:"field_errors,omitempty"`
}

// FormLink points at one of a registry's clinical forms for a patient.
type FormLink struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Link string    `json:"link,omitempty"`
}

// extensions collects the patient_fields CDEs of every registry the user
// belongs to. A superuser without registry claims gets the current one.
func (s *Service) extensions(ctx context.Context, u auth.User, current *registry.Registry) ([]Extension, error) {
	codes := u.Registries
	if len(codes) == 0 && current != nil {
		codes = []string{current.Code}
	}
	var out []Extension
	for _, code := range codes {
		reg := current
		if current == nil || code != current.Code {
			r, err := s.registries.GetRegistryByCode(ctx, code)
			if errors.Is(err, registry.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			reg = r
		}
		fields := reg.PatientFields()
		if len(fields) == 0 {
			continue
		}
		cdes, err := s.registries.ResolveCDEs(ctx, fields)
		if err != nil {
			return nil, fmt.Errorf("patient fields for %s: %w", reg.Code, err)
		}
		out = append(out, Extension{RegistryCode: reg.Code, Elements: cdes})
	}
	return out, nil
}

func (s *Service) patientForm(ctx context.Context, u auth.User, reg *registry.Registry) (*PatientForm, error) {
	ext, err := s.extensions(ctx, u, reg)
	if err != nil {
		return nil, err
	}
	return NewPatientForm(s.sexChoices, ext), nil
}

func (s *Service) registryByCode(ctx context.Context, code string) (*registry.Registry, error) {
	reg, err := s.registries.GetRegistryByCode(ctx, code)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrRegistryNotExists
	}
	return reg, err
}

// NewContext returns the empty add form for a registry.
func (s *Service) NewContext(ctx context.Context, u auth.User, code string) (*FormResult, error) {
	reg, err := s.registryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	form, err := s.patientForm(ctx, u, reg)
	if err != nil {
		return nil, err
	}
	data := map[string]interface{}{"rdrf_registry": []string{reg.Code}}
	return &FormResult{Forms: form.Layout(reg, data, nil, nil), RegistryCode: reg.Code}, nil
}

// EditContext returns the edit form filled from the stored patient.
func (s *Service) EditContext(ctx context.Context, u auth.User, code string, id uuid.UUID) (*FormResult, error) {
	reg, err := s.registryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	p, err := s.authorised(ctx, u, id)
	if err != nil {
		return nil, err
	}
	return s.filledForm(ctx, u, reg, p)
}

func (s *Service) filledForm(ctx context.Context, u auth.User, reg *registry.Registry, p *Patient) (*FormResult, error) {
	form, err := s.patientForm(ctx, u, reg)
	if err != nil {
		return nil, err
	}
	addresses, err := s.patients.ListAddresses(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var doctors []*PatientDoctor
	if reg.MetadataBool(registry.MetaPatientFormDoctors) {
		if doctors, err = s.patients.ListDoctors(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return &FormResult{
		Forms:        form.Layout(reg, Values(p), addresses, doctors),
		Patient:      p,
		RegistryCode: reg.Code,
	}, nil
}

// SubmitForm validates and saves an add (patientID nil) or edit submission.
// The patient form, the address formset and the doctor formset are saved
// together only when all of them are valid. On validation failure the
// returned result carries the submitted values and the error is a
// registry.FieldErrors.
func (s *Service) SubmitForm(ctx context.Context, u auth.User, code string, patientID *uuid.UUID, sub Submission) (*FormResult, error) {
	reg, err := s.registryByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	p := &Patient{}
	var existing *Patient
	if patientID != nil {
		if existing, err = s.authorised(ctx, u, *patientID); err != nil {
			return nil, err
		}
		cp := *existing
		p = &cp
	}
	if sub.Patient == nil {
		sub.Patient = map[string]interface{}{}
	}

	form, err := s.patientForm(ctx, u, reg)
	if err != nil {
		return nil, err
	}
	doctorsEnabled := reg.MetadataBool(registry.MetaPatientFormDoctors)

	errs := registry.FieldErrors{}
	registryCodes, wgID := form.decodeBase(sub.Patient, p, errs)

	cdeValues := map[string]interface{}{}
	for k, v := range p.CDEValues {
		cdeValues[k] = v
	}
	for _, cde := range form.ExtensionElements() {
		value, present := sub.Patient[cde.Code]
		msgs, err := s.registries.ValidateElement(ctx, &cde, value)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			errs.Add(cde.Code, m)
		}
		if present && len(msgs) == 0 {
			cdeValues[cde.Code] = value
		}
	}
	p.CDEValues = cdeValues

	registryIDs, err := s.resolveRegistries(ctx, u, reg, registryCodes, errs)
	if err != nil {
		return nil, err
	}

	if wgID != uuid.Nil {
		if err := s.checkWorkingGroup(ctx, u, wgID, errs); err != nil {
			return nil, err
		}
		p.WorkingGroupID = wgID
	}

	p.Normalise()
	if p.FamilyName != "" && p.GivenNames != "" && wgID != uuid.Nil && nameChanged(existing, p) {
		exists, err := s.patients.Exists(ctx, p.FamilyName, p.GivenNames, p.WorkingGroupID)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add(fieldAll, msgDuplicate)
		}
	}

	states, err := s.knownStates(ctx)
	if err != nil {
		return nil, err
	}
	validateAddresses(sub.Addresses, states, errs)
	if doctorsEnabled {
		if err := s.validateDoctors(ctx, sub.Doctors, errs); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		var doctors interface{}
		if doctorsEnabled {
			doctors = sub.Doctors
		}
		return &FormResult{
			Forms:        form.Layout(reg, sub.Patient, sub.Addresses, doctors),
			Patient:      existing,
			RegistryCode: reg.Code,
			Errors:       true,
			FieldErrors:  errs,
		}, errs
	}

	if existing == nil {
		p.Active = true
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if existing == nil {
			if err := s.patients.Create(ctx, p); err != nil {
				return err
			}
		} else if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		if err := s.patients.SetRegistries(ctx, p.ID, registryIDs); err != nil {
			return err
		}
		if err := s.saveAddresses(ctx, p.ID, sub.Addresses); err != nil {
			return err
		}
		if doctorsEnabled {
			return s.saveDoctors(ctx, p.ID, sub.Doctors)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if existing == nil {
		s.publish(ctx, events.PatientCreated, p, reg.Code, nil)
	} else {
		s.publish(ctx, events.PatientUpdated, p, reg.Code, nil)
	}

	saved, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.filledForm(ctx, u, reg, saved)
	if err != nil {
		return nil, err
	}
	res.Message = MsgSaved
	return res, nil
}

func nameChanged(existing, p *Patient) bool {
	if existing == nil {
		return true
	}
	old := *existing
	old.Normalise()
	return old.FamilyName != p.FamilyName || old.GivenNames != p.GivenNames || old.WorkingGroupID != p.WorkingGroupID
}

// resolveRegistries maps the submitted registry codes to ids. No codes means
// the current registry.
func (s *Service) resolveRegistries(ctx context.Context, u auth.User, current *registry.Registry, codes []string, errs registry.FieldErrors) ([]uuid.UUID, error) {
	if len(codes) == 0 {
		return []uuid.UUID{current.ID}, nil
	}
	ids := make([]uuid.UUID, 0, len(codes))
	seen := map[uuid.UUID]bool{}
	for _, code := range codes {
		reg, err := s.registries.GetRegistryByCode(ctx, code)
		if errors.Is(err, registry.ErrNotFound) || (err == nil && !u.InRegistry(reg.Code)) {
			errs.Add("rdrf_registry", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", code))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !seen[reg.ID] {
			seen[reg.ID] = true
			ids = append(ids, reg.ID)
		}
	}
	return ids, nil
}

func (s *Service) checkWorkingGroup(ctx context.Context, u auth.User, id uuid.UUID, errs registry.FieldErrors) error {
	_, err := s.lookups.GetWorkingGroup(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound), err == nil && !u.InWorkingGroup(id.String()):
		errs.Add("working_groups", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", id))
		return nil
	default:
		return err
	}
}

func (s *Service) knownStates(ctx context.Context) (map[string]bool, error) {
	states, err := s.lookups.States(ctx)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(states))
	for _, st := range states {
		known[st.ShortName] = true
	}
	return known, nil
}

func (s *Service) validateDoctors(ctx context.Context, rows []DoctorRow, errs registry.FieldErrors) error {
	for i, row := range rows {
		if row.Delete {
			continue
		}
		if row.Doctor == nil {
			errs.Add(rowKey(PrefixDoctor, i, "doctor"), msgRequired)
			continue
		}
		_, err := s.doctors.GetByID(ctx, *row.Doctor)
		if errors.Is(err, ErrNotFound) {
			errs.Add(rowKey(PrefixDoctor, i, "doctor"), "Select a valid choice. That choice is not one of the available choices.")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// saveAddresses applies replace-set semantics: stored rows that are not
// submitted, or are submitted with delete set, are removed.
func (s *Service) saveAddresses(ctx context.Context, patientID uuid.UUID, rows []AddressRow) error {
	current, err := s.patients.ListAddresses(ctx, patientID)
	if err != nil {
		return err
	}
	keep := map[uuid.UUID]bool{}
	for _, row := range rows {
		if row.Delete {
			continue
		}
		a := row.toModel(patientID)
		if err := s.patients.SaveAddress(ctx, a); err != nil {
			return err
		}
		keep[a.ID] = true
	}
	for _, a := range current {
		if !keep[a.ID] {
			if err := s.patients.DeleteAddress(ctx, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) saveDoctors(ctx context.Context, patientID uuid.UUID, rows []DoctorRow) error {
	current, err := s.patients.ListDoctors(ctx, patientID)
	if err != nil {
		return err
	}
	keep := map[uuid.UUID]bool{}
	for _, row := range rows {
		if row.Delete {
			continue
		}
		pd := row.toModel(patientID)
		if err := s.patients.SaveDoctor(ctx, pd); err != nil {
			return err
		}
		keep[pd.ID] = true
	}
	for _, pd := range current {
		if !keep[pd.ID] {
			if err := s.patients.DeleteDoctor(ctx, pd.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ViewContext is the registry landing page for u. Patient users also get
// their own record and form.
func (s *Service) ViewContext(ctx context.Context, u auth.User, code string) (map[string]interface{}, error) {
	out := map[string]interface{}{"registry_code": code}
	reg, err := s.registries.GetRegistryByCode(ctx, code)
	if errors.Is(err, registry.ErrNotFound) {
		out["error_msg"] = MsgRegistryNotFound
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out["access"] = u.InRegistry(reg.Code)
	out["splash_screen"] = reg.PatientSplashScreen

	var own *Patient
	if u.Authenticated() {
		own, err = s.patients.GetByUserID(ctx, u.ID)
		if errors.Is(err, ErrNotFound) {
			own = nil
		} else if err != nil {
			return nil, err
		}
	}

	forms, err := s.registries.ListForms(ctx, reg.Code)
	if err != nil {
		return nil, err
	}
	links := make([]FormLink, 0, len(forms))
	for _, f := range forms {
		if f.IsQuestionnaire {
			continue
		}
		l := FormLink{ID: f.ID, Name: f.Name}
		if own != nil {
			l.Link = fmt.Sprintf("/%s/forms/%s/%s", reg.Code, f.ID, own.ID)
		}
		links = append(links, l)
	}
	out["forms"] = links

	if u.IsPatient && own != nil {
		res, err := s.filledForm(ctx, u, reg, own)
		if err != nil {
			return nil, err
		}
		out["patient_record"] = own
		out["patient_form"] = res.Forms
		out["patient_id"] = own.ID
	}
	return out, nil
}

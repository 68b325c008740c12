package patient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/blobstore"
	"github.com/rdrf/rdrf/internal/platform/db"
	"github.com/rdrf/rdrf/internal/platform/events"
)

const (
	MsgSaved            = "Patient's details saved successfully"
	MsgRegistryNotFound = "Registry does not exist"
)

// RegistryLookup is what the patient service needs from registry definitions.
type RegistryLookup interface {
	GetRegistry(ctx context.Context, id uuid.UUID) (*registry.Registry, error)
	GetRegistryByCode(ctx context.Context, code string) (*registry.Registry, error)
	ListForms(ctx context.Context, registryCode string) ([]*registry.RegistryForm, error)
	ResolveCDEs(ctx context.Context, codes []string) ([]registry.CommonDataElement, error)
	ValidateElement(ctx context.Context, cde *registry.CommonDataElement, value interface{}) ([]string, error)
	GetResponse(ctx context.Context, id uuid.UUID) (*registry.QuestionnaireResponse, error)
	MarkProcessed(ctx context.Context, id, patientID uuid.UUID) error
}

// Deps wires the patient service.
type Deps struct {
	Patients   PatientRepository
	Doctors    DoctorRepository
	Lookups    LookupRepository
	Registries RegistryLookup
	Blobs      blobstore.Store
	Events     events.Publisher
	Tx         db.TxRunner
	SexChoices []string
	Logger     zerolog.Logger
}

type Service struct {
	patients   PatientRepository
	doctors    DoctorRepository
	lookups    LookupRepository
	registries RegistryLookup
	blobs      blobstore.Store
	events     events.Publisher
	tx         db.TxRunner
	sexChoices []string
	logger     zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		patients:   d.Patients,
		doctors:    d.Doctors,
		lookups:    d.Lookups,
		registries: d.Registries,
		blobs:      d.Blobs,
		events:     d.Events,
		tx:         d.Tx,
		sexChoices: d.SexChoices,
		logger:     d.Logger.With().Str("component", "patient").Logger(),
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.tx == nil {
		s.tx = db.NoTx
	}
	if s.blobs == nil {
		s.blobs = blobstore.NewMemoryStore()
	}
	if len(s.sexChoices) == 0 {
		s.sexChoices = []string{"M", "F", "X"}
	}
	return s
}

func (s *Service) publish(ctx context.Context, eventType string, p *Patient, registryCode string, data map[string]interface{}) {
	evt := events.New(eventType, p.ID.String(), data)
	evt.Site = db.SiteFromContext(ctx)
	evt.Registry = registryCode
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("patient_id", p.ID.String()).Msg("publish event")
	}
}

// -- Access --

// CanAccess reports whether u may see or change p: superusers always, the
// patient's own login, and staff sharing one of the patient's registries and
// its working group.
func CanAccess(u auth.User, p *Patient) bool {
	if u.IsSuperuser() {
		return true
	}
	if p.UserID != nil && *p.UserID == u.ID {
		return true
	}
	if !u.InWorkingGroup(p.WorkingGroupID.String()) {
		return false
	}
	if len(p.Registries) == 0 {
		return true
	}
	for _, r := range p.Registries {
		if u.InRegistry(r.Code) {
			return true
		}
	}
	return false
}

func (s *Service) authorised(ctx context.Context, u auth.User, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAccess(u, p) {
		return nil, ErrForbidden
	}
	return p, nil
}

func workingGroupIDs(u auth.User) []uuid.UUID {
	var out []uuid.UUID
	for _, s := range u.WorkingGroups {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// -- Patient records --

// CreatePatient saves a new, active patient and assigns its registries.
func (s *Service) CreatePatient(ctx context.Context, p *Patient, registryIDs []uuid.UUID) error {
	p.Normalise()
	if p.FamilyName == "" || p.GivenNames == "" {
		return fmt.Errorf("%w: family_name and given_names are required", ErrInvalid)
	}
	if p.WorkingGroupID == uuid.Nil {
		return fmt.Errorf("%w: working group is required", ErrInvalid)
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("%w: date_of_birth is required", ErrInvalid)
	}
	p.Active = true

	err := s.tx(ctx, func(ctx context.Context) error {
		exists, err := s.patients.Exists(ctx, p.FamilyName, p.GivenNames, p.WorkingGroupID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePatient
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		return s.patients.SetRegistries(ctx, p.ID, registryIDs)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.PatientCreated, p, "", nil)
	return nil
}

func (s *Service) GetPatient(ctx context.Context, u auth.User, id uuid.UUID) (*Patient, error) {
	return s.authorised(ctx, u, id)
}

// DeletePatient archives an active patient. Deleting an archived patient
// removes the record. It returns true when the row was removed.
func (s *Service) DeletePatient(ctx context.Context, u auth.User, id uuid.UUID) (bool, error) {
	p, err := s.authorised(ctx, u, id)
	if err != nil {
		return false, err
	}
	if p.Active {
		p.Active = false
		if err := s.patients.Update(ctx, p); err != nil {
			return false, err
		}
		s.publish(ctx, events.PatientArchived, p, "", nil)
		return false, nil
	}
	if err := s.patients.Delete(ctx, id); err != nil {
		return false, err
	}
	s.publish(ctx, events.PatientDeleted, p, "", nil)
	return true, nil
}

// Lookup fetches a patient without an access check, for server-side jobs.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// RegistryPatients returns every active patient of a registry, for
// server-side jobs.
func (s *Service) RegistryPatients(ctx context.Context, registryCode string) ([]*Patient, error) {
	const batch = 500
	f := Filter{RegistryCodes: []string{registryCode}}
	var all []*Patient
	for offset := 0; ; offset += batch {
		items, total, err := s.patients.List(ctx, f, batch, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < batch || len(all) >= total {
			return all, nil
		}
	}
}

// ListForRegistry lists the registry's patients visible to u: all of them
// for superusers, otherwise those in u's working groups. Archived patients
// are included unless activeOnly is set.
func (s *Service) ListForRegistry(ctx context.Context, u auth.User, registryCode string, activeOnly bool, limit, offset int) ([]*Patient, int, error) {
	if !u.InRegistry(registryCode) {
		return nil, 0, ErrForbidden
	}
	f := Filter{RegistryCodes: []string{registryCode}, ActiveOnly: activeOnly}
	if !u.IsSuperuser() {
		f.WorkingGroupIDs = workingGroupIDs(u)
		if len(f.WorkingGroupIDs) == 0 {
			return nil, 0, nil
		}
	}
	return s.patients.List(ctx, f, limit, offset)
}

// ExportRegistry writes every patient of the registry visible to u as XLSX.
func (s *Service) ExportRegistry(ctx context.Context, u auth.User, registryCode string, activeOnly bool, w io.Writer) error {
	const batch = 500
	var all []*Patient
	for offset := 0; ; offset += batch {
		items, total, err := s.ListForRegistry(ctx, u, registryCode, activeOnly, batch, offset)
		if err != nil {
			return err
		}
		all = append(all, items...)
		if len(items) < batch || len(all) >= total {
			break
		}
	}
	return WriteXLSX(w, all)
}

// ListFiltered lists patients in any of u's registries and working groups.
func (s *Service) ListFiltered(ctx context.Context, u auth.User, limit, offset int) ([]*Patient, int, error) {
	if u.IsSuperuser() {
		return s.patients.List(ctx, Filter{}, limit, offset)
	}
	f := Filter{RegistryCodes: u.Registries, WorkingGroupIDs: workingGroupIDs(u)}
	if len(f.RegistryCodes) == 0 || len(f.WorkingGroupIDs) == 0 {
		return nil, 0, nil
	}
	return s.patients.List(ctx, f, limit, offset)
}

// ListUnallocated lists patients in u's working groups that belong to no
// registry.
func (s *Service) ListUnallocated(ctx context.Context, u auth.User, limit, offset int) ([]*Patient, int, error) {
	f := Filter{Unallocated: true}
	if !u.IsSuperuser() {
		f.WorkingGroupIDs = workingGroupIDs(u)
		if len(f.WorkingGroupIDs) == 0 {
			return nil, 0, nil
		}
	}
	return s.patients.List(ctx, f, limit, offset)
}

// PatientExists reports whether the name is taken within the working group.
func (s *Service) PatientExists(ctx context.Context, familyName, givenNames string, workingGroupID uuid.UUID) (bool, error) {
	p := &Patient{FamilyName: familyName, GivenNames: givenNames}
	p.Normalise()
	return s.patients.Exists(ctx, p.FamilyName, p.GivenNames, workingGroupID)
}

// -- Parents --

func (s *Service) AddParent(ctx context.Context, u auth.User, patientID uuid.UUID, pg *ParentGuardian) error {
	if _, err := s.authorised(ctx, u, patientID); err != nil {
		return err
	}
	pg.FamilyName = collapse(pg.FamilyName)
	pg.GivenNames = collapse(pg.GivenNames)
	if pg.FamilyName == "" || pg.GivenNames == "" {
		return fmt.Errorf("%w: family_name and given_names are required", ErrInvalid)
	}
	pg.PatientID = patientID
	return s.patients.AddParent(ctx, pg)
}

func (s *Service) ListParents(ctx context.Context, u auth.User, patientID uuid.UUID) ([]*ParentGuardian, error) {
	if _, err := s.authorised(ctx, u, patientID); err != nil {
		return nil, err
	}
	return s.patients.ListParents(ctx, patientID)
}

// Parents returns a patient's parents and guardians without an access check.
// Review creation runs from the command line.
func (s *Service) Parents(ctx context.Context, patientID uuid.UUID) ([]*ParentGuardian, error) {
	return s.patients.ListParents(ctx, patientID)
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if collapse(d.FamilyName) == "" || collapse(d.GivenNames) == "" {
		return fmt.Errorf("%w: family_name and given_names are required", ErrInvalid)
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if collapse(d.FamilyName) == "" || collapse(d.GivenNames) == "" {
		return fmt.Errorf("%w: family_name and given_names are required", ErrInvalid)
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Lookups --

func (s *Service) States(ctx context.Context) ([]*State, error) {
	return s.lookups.States(ctx)
}

func (s *Service) Relationships(ctx context.Context) ([]*NextOfKinRelationship, error) {
	return s.lookups.Relationships(ctx)
}

func (s *Service) AddressTypes(ctx context.Context) ([]*AddressType, error) {
	return s.lookups.AddressTypes(ctx)
}

func (s *Service) WorkingGroups(ctx context.Context) ([]*WorkingGroup, error) {
	return s.lookups.WorkingGroups(ctx)
}

func (s *Service) CreateWorkingGroup(ctx context.Context, wg *WorkingGroup) error {
	wg.Name = collapse(wg.Name)
	if wg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return s.lookups.CreateWorkingGroup(ctx, wg)
}

// -- Questionnaire approval --

// ApproveQuestionnaire creates a patient from the base-field answers of an
// unprocessed questionnaire response and marks the response processed.
// Answers for the registry's patient fields become the patient's CDE values.
func (s *Service) ApproveQuestionnaire(ctx context.Context, responseID uuid.UUID) (*Patient, error) {
	qr, err := s.registries.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if qr.Processed {
		return nil, registry.ErrAlreadyProcessed
	}
	reg, err := s.registries.GetRegistry(ctx, qr.RegistryID)
	if err != nil {
		return nil, err
	}

	form := NewPatientForm(s.sexChoices, nil)
	p := &Patient{CDEValues: map[string]interface{}{}}
	errs := registry.FieldErrors{}
	_, wgID := form.decodeBase(qr.Answers, p, errs)
	if wgID != uuid.Nil {
		if _, err := s.lookups.GetWorkingGroup(ctx, wgID); errors.Is(err, ErrNotFound) {
			errs.Add("working_groups", "Select a valid choice. That choice is not one of the available choices.")
		} else if err != nil {
			return nil, err
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	for _, code := range reg.PatientFields() {
		if v, ok := qr.Answers[code]; ok {
			p.CDEValues[code] = v
		}
	}
	p.WorkingGroupID = wgID
	p.Normalise()
	p.Active = true

	err = s.tx(ctx, func(ctx context.Context) error {
		exists, err := s.patients.Exists(ctx, p.FamilyName, p.GivenNames, p.WorkingGroupID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePatient
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		if err := s.patients.SetRegistries(ctx, p.ID, []uuid.UUID{reg.ID}); err != nil {
			return err
		}
		return s.registries.MarkProcessed(ctx, qr.ID, p.ID)
	})
	if err != nil {
		return nil, err
	}
	p.Registries = []RegistryRef{{ID: reg.ID, Code: reg.Code, Name: reg.Name}}

	s.publish(ctx, events.PatientCreated, p, reg.Code, nil)
	s.publish(ctx, events.QuestionnaireApproved, p, reg.Code, map[string]interface{}{"response_id": qr.ID.String()})
	s.logger.Info().Str("registry", reg.Code).Str("response_id", qr.ID.String()).Str("patient_id", p.ID.String()).
		Msg("questionnaire approved")
	return p, nil
}

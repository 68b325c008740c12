package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rdrf/rdrf/internal/platform/cache"
	"github.com/rdrf/rdrf/internal/platform/db"
)

const (
	maxRegistryName = 80
	maxRegistryCode = 10
	maxCDECode      = 30
)

// Repos groups the repositories the service reads and writes.
type Repos struct {
	Registries RegistryRepository
	Forms      FormRepository
	Sections   SectionRepository
	CDEs       CDERepository
	Wizards    WizardRepository
	Responses  ResponseRepository
}

type Service struct {
	registries RegistryRepository
	forms      FormRepository
	sections   SectionRepository
	cdes       CDERepository
	wizards    WizardRepository
	responses  ResponseRepository
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// NewService builds the definitions service. A nil cache falls back to an
// in-process one.
func NewService(repos Repos, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{
		registries: repos.Registries,
		forms:      repos.Forms,
		sections:   repos.Sections,
		cdes:       repos.CDEs,
		wizards:    repos.Wizards,
		responses:  repos.Responses,
		cache:      c,
		cacheTTL:   ttl,
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// -- Registry --

func validateRegistry(r *Registry) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Code = strings.TrimSpace(r.Code)
	if r.Name == "" || r.Code == "" {
		return invalidf("name and code are required")
	}
	if len(r.Name) > maxRegistryName {
		return invalidf("name must be at most %d characters", maxRegistryName)
	}
	if len(r.Code) > maxRegistryCode {
		return invalidf("code must be at most %d characters", maxRegistryCode)
	}
	return nil
}

func (s *Service) CreateRegistry(ctx context.Context, r *Registry) error {
	if err := validateRegistry(r); err != nil {
		return err
	}
	return s.registries.Create(ctx, r)
}

func (s *Service) GetRegistry(ctx context.Context, id uuid.UUID) (*Registry, error) {
	return s.registries.GetByID(ctx, id)
}

func (s *Service) GetRegistryByCode(ctx context.Context, code string) (*Registry, error) {
	return s.registries.GetByCode(ctx, code)
}

func (s *Service) UpdateRegistry(ctx context.Context, r *Registry) error {
	if err := validateRegistry(r); err != nil {
		return err
	}
	return s.registries.Update(ctx, r)
}

func (s *Service) DeleteRegistry(ctx context.Context, code string) error {
	r, err := s.registries.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	forms, err := s.forms.ListByRegistry(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := s.registries.Delete(ctx, r.ID); err != nil {
		return err
	}
	for _, f := range forms {
		s.invalidate(ctx, f.ID)
	}
	return nil
}

func (s *Service) ListRegistries(ctx context.Context, limit, offset int) ([]*Registry, int, error) {
	return s.registries.List(ctx, limit, offset)
}

// Questionnaire returns the registry's single questionnaire form.
func (s *Service) Questionnaire(ctx context.Context, registryCode string) (*RegistryForm, error) {
	r, err := s.registries.GetByCode(ctx, registryCode)
	if err != nil {
		return nil, err
	}
	forms, err := s.forms.ListByRegistry(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	var found *RegistryForm
	for _, f := range forms {
		if !f.IsQuestionnaire {
			continue
		}
		if found != nil {
			return nil, ErrMultipleFound
		}
		found = f
	}
	if found == nil {
		return nil, ErrNoQuestionnaire
	}
	return found, nil
}

// -- Forms --

func (s *Service) CreateForm(ctx context.Context, registryCode string, f *RegistryForm) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return invalidf("name is required")
	}
	r, err := s.registries.GetByCode(ctx, registryCode)
	if err != nil {
		return err
	}
	f.RegistryID = r.ID
	f.Sections = strings.Join(f.SectionCodes(), ",")
	return s.forms.Create(ctx, f)
}

func (s *Service) GetForm(ctx context.Context, id uuid.UUID) (*RegistryForm, error) {
	return s.forms.GetByID(ctx, id)
}

func (s *Service) UpdateForm(ctx context.Context, f *RegistryForm) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return invalidf("name is required")
	}
	f.Sections = strings.Join(f.SectionCodes(), ",")
	if err := s.forms.Update(ctx, f); err != nil {
		return err
	}
	s.invalidate(ctx, f.ID)
	return nil
}

func (s *Service) DeleteForm(ctx context.Context, id uuid.UUID) error {
	if err := s.forms.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) ListForms(ctx context.Context, registryCode string) ([]*RegistryForm, error) {
	r, err := s.registries.GetByCode(ctx, registryCode)
	if err != nil {
		return nil, err
	}
	return s.forms.ListByRegistry(ctx, r.ID)
}

// FormDefinition resolves a form to its sections and CDEs. Results are cached
// per site until the form, one of its sections or one of its CDEs changes.
func (s *Service) FormDefinition(ctx context.Context, formID uuid.UUID) (*FormDefinition, error) {
	key := definitionKey(ctx, formID)

	var def FormDefinition
	err := s.cache.Get(ctx, key, &def)
	if err == nil {
		return &def, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("form definition cache read failed")
	}

	built, err := s.buildDefinition(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, built, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("form definition cache write failed")
	}
	return built, nil
}

func (s *Service) buildDefinition(ctx context.Context, formID uuid.UUID) (*FormDefinition, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registries.GetByID(ctx, form.RegistryID)
	if err != nil {
		return nil, fmt.Errorf("form %s registry: %w", form.Name, err)
	}

	def := &FormDefinition{Form: *form, Registry: reg.Code}
	for _, code := range form.SectionCodes() {
		sec, err := s.sections.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("form %s section %s: %w", form.Name, code, err)
		}
		elements, err := s.ResolveCDEs(ctx, sec.ElementCodes())
		if err != nil {
			return nil, fmt.Errorf("form %s section %s: %w", form.Name, code, err)
		}
		def.Sections = append(def.Sections, SectionDefinition{Section: *sec, Elements: elements})
	}
	return def, nil
}

// ResolveCDEs loads the CDEs named by codes, in order.
func (s *Service) ResolveCDEs(ctx context.Context, codes []string) ([]CommonDataElement, error) {
	out := make([]CommonDataElement, 0, len(codes))
	for _, code := range codes {
		cde, err := s.cdes.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("cde %s: %w", code, err)
		}
		out = append(out, *cde)
	}
	return out, nil
}

func definitionKey(ctx context.Context, formID uuid.UUID) string {
	return fmt.Sprintf("formdef:%s:%s", db.SiteFromContext(ctx), formID)
}

func (s *Service) invalidate(ctx context.Context, formIDs ...uuid.UUID) {
	keys := make([]string, 0, len(formIDs))
	for _, id := range formIDs {
		keys = append(keys, definitionKey(ctx, id))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Int("keys", len(keys)).Msg("form definition cache invalidation failed")
	}
}

// invalidateAll drops every cached definition of the current site. Section
// and CDE edits may touch any form.
func (s *Service) invalidateAll(ctx context.Context) {
	ids, err := s.forms.ListIDs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list forms for cache invalidation")
		return
	}
	s.invalidate(ctx, ids...)
}

// -- Sections --

func validateSection(sec *Section) error {
	sec.Code = strings.TrimSpace(sec.Code)
	if sec.Code == "" || strings.TrimSpace(sec.DisplayName) == "" {
		return invalidf("code and display_name are required")
	}
	sec.Elements = strings.Join(sec.ElementCodes(), ",")
	return nil
}

func (s *Service) CreateSection(ctx context.Context, sec *Section) error {
	if err := validateSection(sec); err != nil {
		return err
	}
	return s.sections.Create(ctx, sec)
}

func (s *Service) GetSection(ctx context.Context, id uuid.UUID) (*Section, error) {
	return s.sections.GetByID(ctx, id)
}

func (s *Service) UpdateSection(ctx context.Context, sec *Section) error {
	if err := validateSection(sec); err != nil {
		return err
	}
	if err := s.sections.Update(ctx, sec); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) DeleteSection(ctx context.Context, id uuid.UUID) error {
	if err := s.sections.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) ListSections(ctx context.Context, limit, offset int) ([]*Section, int, error) {
	return s.sections.List(ctx, limit, offset)
}

// -- CDEs and permitted values --

func validateCDE(c *CommonDataElement) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" || strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Datatype) == "" {
		return invalidf("code, name and datatype are required")
	}
	if len(c.Code) > maxCDECode {
		return invalidf("code must be at most %d characters", maxCDECode)
	}
	if c.PVGroup != nil && strings.TrimSpace(*c.PVGroup) == "" {
		c.PVGroup = nil
	}
	return nil
}

func (s *Service) CreateCDE(ctx context.Context, c *CommonDataElement) error {
	if err := validateCDE(c); err != nil {
		return err
	}
	return s.cdes.Create(ctx, c)
}

func (s *Service) GetCDE(ctx context.Context, code string) (*CommonDataElement, error) {
	return s.cdes.GetByCode(ctx, code)
}

func (s *Service) UpdateCDE(ctx context.Context, c *CommonDataElement) error {
	if err := validateCDE(c); err != nil {
		return err
	}
	if err := s.cdes.Update(ctx, c); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) DeleteCDE(ctx context.Context, code string) error {
	if err := s.cdes.Delete(ctx, code); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) ListCDEs(ctx context.Context, limit, offset int) ([]*CommonDataElement, int, error) {
	return s.cdes.List(ctx, limit, offset)
}

func (s *Service) CreatePermittedValueGroup(ctx context.Context, g *PermittedValueGroup) error {
	g.Code = strings.TrimSpace(g.Code)
	if g.Code == "" {
		return invalidf("code is required")
	}
	return s.cdes.CreateGroup(ctx, g)
}

func (s *Service) ListPermittedValueGroups(ctx context.Context) ([]*PermittedValueGroup, error) {
	return s.cdes.ListGroups(ctx)
}

func (s *Service) AddPermittedValue(ctx context.Context, groupCode string, pv *PermittedValue) error {
	if strings.TrimSpace(pv.Code) == "" || strings.TrimSpace(pv.Value) == "" {
		return invalidf("code and value are required")
	}
	if _, err := s.cdes.GetGroup(ctx, groupCode); err != nil {
		return err
	}
	pv.GroupCode = groupCode
	return s.cdes.AddValue(ctx, pv)
}

func (s *Service) PermittedValues(ctx context.Context, groupCode string) ([]*PermittedValue, error) {
	if _, err := s.cdes.GetGroup(ctx, groupCode); err != nil {
		return nil, err
	}
	return s.cdes.ListValues(ctx, groupCode)
}

// ValidateValue checks value against the CDE named by code.
func (s *Service) ValidateValue(ctx context.Context, code string, value interface{}) ([]string, error) {
	cde, err := s.cdes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.ValidateElement(ctx, cde, value)
}

// ValidateElement checks value against cde, loading its permitted values.
func (s *Service) ValidateElement(ctx context.Context, cde *CommonDataElement, value interface{}) ([]string, error) {
	var permitted []PermittedValue
	if cde.PVGroup != nil {
		values, err := s.cdes.ListValues(ctx, *cde.PVGroup)
		if err != nil {
			return nil, fmt.Errorf("permitted values for %s: %w", cde.Code, err)
		}
		for _, pv := range values {
			permitted = append(permitted, *pv)
		}
	}
	return ValidateCDEValue(cde, value, permitted), nil
}

// -- Wizards --

func (s *Service) CreateWizard(ctx context.Context, w *Wizard) error {
	w.Registry = strings.TrimSpace(w.Registry)
	if w.Registry == "" {
		return invalidf("registry is required")
	}
	w.Forms = strings.Join(w.FormNames(), ",")
	return s.wizards.Create(ctx, w)
}

func (s *Service) GetWizard(ctx context.Context, id uuid.UUID) (*Wizard, error) {
	return s.wizards.GetByID(ctx, id)
}

func (s *Service) ListWizards(ctx context.Context, registryCode string) ([]*Wizard, error) {
	return s.wizards.List(ctx, registryCode)
}

// -- Questionnaire responses --

// SubmitQuestionnaire stores answers for the registry's questionnaire after
// validating every questionnaire CDE. Answers keyed by anything other than a
// questionnaire CDE are kept as given.
func (s *Service) SubmitQuestionnaire(ctx context.Context, registryCode string, answers map[string]interface{}) (*QuestionnaireResponse, error) {
	form, err := s.Questionnaire(ctx, registryCode)
	if err != nil {
		return nil, err
	}
	def, err := s.FormDefinition(ctx, form.ID)
	if err != nil {
		return nil, err
	}

	fieldErrs := FieldErrors{}
	for _, cde := range def.Elements() {
		msgs, err := s.ValidateElement(ctx, &cde, answers[cde.Code])
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			fieldErrs.Add(cde.Code, m)
		}
	}
	if err := fieldErrs.Err(); err != nil {
		return nil, err
	}

	qr := &QuestionnaireResponse{RegistryID: form.RegistryID, Answers: answers}
	if err := s.responses.Create(ctx, qr); err != nil {
		return nil, err
	}
	s.logger.Info().Str("registry", registryCode).Str("response_id", qr.ID.String()).Msg("questionnaire submitted")
	return qr, nil
}

func (s *Service) ListResponses(ctx context.Context, registryCode string, processed *bool, limit, offset int) ([]*QuestionnaireResponse, int, error) {
	r, err := s.registries.GetByCode(ctx, registryCode)
	if err != nil {
		return nil, 0, err
	}
	return s.responses.List(ctx, r.ID, processed, limit, offset)
}

func (s *Service) GetResponse(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error) {
	return s.responses.GetByID(ctx, id)
}

// MarkProcessed links a response to the patient created from it. A response
// can be processed once only.
func (s *Service) MarkProcessed(ctx context.Context, id, patientID uuid.UUID) error {
	return s.responses.MarkProcessed(ctx, id, patientID)
}

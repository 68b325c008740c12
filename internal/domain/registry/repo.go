package registry

import (
	"context"

	"github.com/google/uuid"
)

type RegistryRepository interface {
	Create(ctx context.Context, r *Registry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Registry, error)
	GetByCode(ctx context.Context, code string) (*Registry, error)
	Update(ctx context.Context, r *Registry) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Registry, int, error)
}

type FormRepository interface {
	Create(ctx context.Context, f *RegistryForm) error
	GetByID(ctx context.Context, id uuid.UUID) (*RegistryForm, error)
	Update(ctx context.Context, f *RegistryForm) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByRegistry(ctx context.Context, registryID uuid.UUID) ([]*RegistryForm, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type SectionRepository interface {
	Create(ctx context.Context, s *Section) error
	GetByID(ctx context.Context, id uuid.UUID) (*Section, error)
	GetByCode(ctx context.Context, code string) (*Section, error)
	Update(ctx context.Context, s *Section) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Section, int, error)
}

type CDERepository interface {
	Create(ctx context.Context, cde *CommonDataElement) error
	GetByCode(ctx context.Context, code string) (*CommonDataElement, error)
	Update(ctx context.Context, cde *CommonDataElement) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context, limit, offset int) ([]*CommonDataElement, int, error)

	// Permitted values
	CreateGroup(ctx context.Context, g *PermittedValueGroup) error
	GetGroup(ctx context.Context, code string) (*PermittedValueGroup, error)
	ListGroups(ctx context.Context) ([]*PermittedValueGroup, error)
	AddValue(ctx context.Context, pv *PermittedValue) error
	ListValues(ctx context.Context, groupCode string) ([]*PermittedValue, error)
}

type WizardRepository interface {
	Create(ctx context.Context, w *Wizard) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wizard, error)
	List(ctx context.Context, registryCode string) ([]*Wizard, error)
}

type ResponseRepository interface {
	Create(ctx context.Context, qr *QuestionnaireResponse) error
	GetByID(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error)
	List(ctx context.Context, registryID uuid.UUID, processed *bool, limit, offset int) ([]*QuestionnaireResponse, int, error)
	// MarkProcessed sets processed and patient_id on an unprocessed response.
	// It returns ErrAlreadyProcessed when the response was processed before.
	MarkProcessed(ctx context.Context, id, patientID uuid.UUID) error
}

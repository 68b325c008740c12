package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
	Exists(ctx context.Context, familyName, givenNames string, workingGroupID uuid.UUID) (bool, error)
	SetRegistries(ctx context.Context, patientID uuid.UUID, registryIDs []uuid.UUID) error

	// Addresses
	ListAddresses(ctx context.Context, patientID uuid.UUID) ([]*PatientAddress, error)
	SaveAddress(ctx context.Context, a *PatientAddress) error
	DeleteAddress(ctx context.Context, id uuid.UUID) error

	// Doctors
	ListDoctors(ctx context.Context, patientID uuid.UUID) ([]*PatientDoctor, error)
	SaveDoctor(ctx context.Context, pd *PatientDoctor) error
	DeleteDoctor(ctx context.Context, id uuid.UUID) error

	// Consents
	AddConsent(ctx context.Context, c *PatientConsent) error
	GetConsent(ctx context.Context, id uuid.UUID) (*PatientConsent, error)
	ListConsents(ctx context.Context, patientID uuid.UUID) ([]*PatientConsent, error)
	DeleteConsent(ctx context.Context, id uuid.UUID) error

	// Parents and guardians, oldest first
	AddParent(ctx context.Context, pg *ParentGuardian) error
	ListParents(ctx context.Context, patientID uuid.UUID) ([]*ParentGuardian, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type LookupRepository interface {
	States(ctx context.Context) ([]*State, error)
	Relationships(ctx context.Context) ([]*NextOfKinRelationship, error)
	AddressTypes(ctx context.Context) ([]*AddressType, error)
	WorkingGroups(ctx context.Context) ([]*WorkingGroup, error)
	GetWorkingGroup(ctx context.Context, id uuid.UUID) (*WorkingGroup, error)
	CreateWorkingGroup(ctx context.Context, wg *WorkingGroup) error
}

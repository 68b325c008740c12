package review

import (
	"context"

	"github.com/google/uuid"
)

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	GetByCode(ctx context.Context, registryID uuid.UUID, code string) (*Review, error)
	ListByRegistry(ctx context.Context, registryID uuid.UUID) ([]*Review, error)
	AddItem(ctx context.Context, item *ReviewItem) error
	ListItems(ctx context.Context, reviewID uuid.UUID) ([]*ReviewItem, error)
}

type PatientReviewRepository interface {
	Create(ctx context.Context, pr *PatientReview) error
	GetByToken(ctx context.Context, token uuid.UUID) (*PatientReview, error)
	AddItem(ctx context.Context, item *PatientReviewItem) error
	ListItems(ctx context.Context, patientReviewID uuid.UUID) ([]*PatientReviewItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*PatientReviewItem, error)
	UpdateItem(ctx context.Context, item *PatientReviewItem) error
	SetState(ctx context.Context, id uuid.UUID, state string) error
	// Complete finishes an unfinished review. It returns ErrReviewFinished
	// when the review was already finished.
	Complete(ctx context.Context, id uuid.UUID) error
}

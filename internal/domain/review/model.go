package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rdrf/rdrf/internal/domain/registry"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicate             = errors.New("review code already exists in this registry")
	ErrInvalid               = errors.New("invalid input")
	ErrNoParent              = errors.New("patient has no associated parent")
	ErrNoUser                = errors.New("patient has no associated user")
	ErrUnsupportedReviewType = errors.New("unsupported review type")
	ErrReviewFinished        = errors.New("review is already finished")
)

// Review types.
const (
	TypeParent       = "R" // completed by the patient's parent or guardian
	TypeVerification = "V" // verified by the patient's clinician
)

// Patient review and item states.
const (
	StateCreated    = "C"
	StateInProgress = "P"
	StateFinished   = "F"
)

type Review struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RegistryID uuid.UUID `db:"registry_id" json:"registry_id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	ReviewType string    `db:"review_type" json:"review_type"`
}

func (r *Review) Validate() error {
	switch {
	case r.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalid)
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case r.ReviewType != TypeParent && r.ReviewType != TypeVerification:
		return fmt.Errorf("%w: review_type must be %s or %s", ErrInvalid, TypeParent, TypeVerification)
	}
	return nil
}

type ReviewItem struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ReviewID uuid.UUID `db:"review_id" json:"review_id"`
	Code     string    `db:"code" json:"code"`
	Category string    `db:"category" json:"category"`
	Name     string    `db:"name" json:"name"`
	Position int       `db:"position" json:"position"`
	Form     string    `db:"form" json:"form"`
	Section  string    `db:"section" json:"section"`
	Fields   string    `db:"fields" json:"fields"`
}

// FieldCodes lists the CDE codes the item asks about.
func (i *ReviewItem) FieldCodes() []string {
	return registry.SplitCodes(i.Fields)
}

// PatientReview is one review sent out for one patient. The token is the
// only credential the reviewer needs.
type PatientReview struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	ReviewID    uuid.UUID            `db:"review_id" json:"review_id"`
	PatientID   uuid.UUID            `db:"patient_id" json:"patient_id"`
	UserID      string               `db:"user_id" json:"user_id"`
	ParentID    *uuid.UUID           `db:"parent_id" json:"parent_id,omitempty"`
	Token       uuid.UUID            `db:"token" json:"-"`
	State       string               `db:"state" json:"state"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	CompletedAt *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
	Items       []*PatientReviewItem `db:"-" json:"items,omitempty"`
}

type PatientReviewItem struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	PatientReviewID uuid.UUID              `db:"patient_review_id" json:"patient_review_id"`
	ReviewItemID    uuid.UUID              `db:"review_item_id" json:"review_item_id"`
	HasChanged      bool                   `db:"has_changed" json:"has_changed"`
	Data            map[string]interface{} `db:"data" json:"data,omitempty"`
	State           string                 `db:"state" json:"state"`
}

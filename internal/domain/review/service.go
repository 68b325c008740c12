package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rdrf/rdrf/internal/domain/patient"
	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/platform/db"
	"github.com/rdrf/rdrf/internal/platform/events"
)

// ErrAborted reports a CreateReviews run that stopped early. The reason has
// already been written to the output.
var ErrAborted = errors.New("review creation aborted")

// RegistryLookup resolves registries by code.
type RegistryLookup interface {
	GetRegistryByCode(ctx context.Context, code string) (*registry.Registry, error)
}

// PatientSource is the patient data reviews are built from.
type PatientSource interface {
	Lookup(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	RegistryPatients(ctx context.Context, registryCode string) ([]*patient.Patient, error)
	Parents(ctx context.Context, patientID uuid.UUID) ([]*patient.ParentGuardian, error)
}

type Deps struct {
	Reviews        ReviewRepository
	PatientReviews PatientReviewRepository
	Registries     RegistryLookup
	Patients       PatientSource
	Events         events.Publisher
	Tx             db.TxRunner
	BaseURL        string
	Logger         zerolog.Logger
}

type Service struct {
	reviews        ReviewRepository
	patientReviews PatientReviewRepository
	registries     RegistryLookup
	patients       PatientSource
	events         events.Publisher
	tx             db.TxRunner
	baseURL        string
	logger         zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		reviews:        d.Reviews,
		patientReviews: d.PatientReviews,
		registries:     d.Registries,
		patients:       d.Patients,
		events:         d.Events,
		tx:             d.Tx,
		baseURL:        d.BaseURL,
		logger:         d.Logger.With().Str("component", "review").Logger(),
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.tx == nil {
		s.tx = db.NoTx
	}
	if s.baseURL == "" {
		s.baseURL = "/reviews"
	}
	return s
}

// -- Reviews --

func (s *Service) CreateReview(ctx context.Context, registryCode string, r *Review) error {
	reg, err := s.registries.GetRegistryByCode(ctx, registryCode)
	if err != nil {
		return err
	}
	r.Code = strings.TrimSpace(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	if r.ReviewType == "" {
		r.ReviewType = TypeParent
	}
	if err := r.Validate(); err != nil {
		return err
	}
	r.RegistryID = reg.ID
	return s.reviews.Create(ctx, r)
}

func (s *Service) GetReview(ctx context.Context, id uuid.UUID) (*Review, error) {
	return s.reviews.GetByID(ctx, id)
}

func (s *Service) ListReviews(ctx context.Context, registryCode string) ([]*Review, error) {
	reg, err := s.registries.GetRegistryByCode(ctx, registryCode)
	if err != nil {
		return nil, err
	}
	return s.reviews.ListByRegistry(ctx, reg.ID)
}

func (s *Service) AddItem(ctx context.Context, reviewID uuid.UUID, item *ReviewItem) error {
	if _, err := s.reviews.GetByID(ctx, reviewID); err != nil {
		return err
	}
	item.Code = strings.TrimSpace(item.Code)
	if item.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalid)
	}
	item.ReviewID = reviewID
	return s.reviews.AddItem(ctx, item)
}

func (s *Service) ListItems(ctx context.Context, reviewID uuid.UUID) ([]*ReviewItem, error) {
	return s.reviews.ListItems(ctx, reviewID)
}

// -- Patient reviews --

// ReviewURL is the link a reviewer follows to open a patient review.
func (s *Service) ReviewURL(token uuid.UUID) string {
	return fmt.Sprintf("%s?t=%s", s.baseURL, token)
}

// CreatePatientReview sends review r for patient p and returns the review URL.
// The reviewer is the first parent for parent reviews and the clinician for
// verification reviews. A parent must exist either way.
func (s *Service) CreatePatientReview(ctx context.Context, r *Review, reg *registry.Registry, p *patient.Patient) (string, error) {
	parents, err := s.patients.Parents(ctx, p.ID)
	if err != nil {
		return "", err
	}
	if len(parents) == 0 {
		return "", ErrNoParent
	}
	parent := parents[0]

	var user *string
	switch r.ReviewType {
	case TypeParent:
		user = parent.UserID
	case TypeVerification:
		user = p.ClinicianUserID
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedReviewType, r.ReviewType)
	}
	if user == nil || *user == "" {
		return "", ErrNoUser
	}

	items, err := s.reviews.ListItems(ctx, r.ID)
	if err != nil {
		return "", err
	}

	pr := &PatientReview{
		ReviewID:  r.ID,
		PatientID: p.ID,
		UserID:    *user,
		ParentID:  &parent.ID,
		Token:     uuid.New(),
		State:     StateCreated,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patientReviews.Create(ctx, pr); err != nil {
			return err
		}
		for _, item := range items {
			pri := &PatientReviewItem{PatientReviewID: pr.ID, ReviewItemID: item.ID, State: StateCreated}
			if err := s.patientReviews.AddItem(ctx, pri); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	url := s.ReviewURL(pr.Token)
	evt := events.New(events.ReviewCreated, pr.ID.String(), map[string]interface{}{
		"review":     r.Code,
		"patient_id": p.ID.String(),
		"user_id":    pr.UserID,
	})
	evt.Site = db.SiteFromContext(ctx)
	evt.Registry = reg.Code
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("patient_review_id", pr.ID.String()).Msg("publish review.created")
	}
	return url, nil
}

// CreateReviews creates review reviewCode for one patient, or for every
// patient of the registry when patientID is empty. Progress and problems are
// written to out. Patients without a parent or user are reported and
// skipped. ErrAborted means the run could not start or the named patient
// does not exist.
func (s *Service) CreateReviews(ctx context.Context, out io.Writer, registryCode, reviewCode, patientID string) error {
	abort := func(msg string) error {
		fmt.Fprintln(out, msg)
		return ErrAborted
	}

	if registryCode == "" {
		return abort("Error: registry code required")
	}
	reg, err := s.registries.GetRegistryByCode(ctx, registryCode)
	if errors.Is(err, registry.ErrNotFound) {
		return abort("Error: registry does not exist")
	}
	if err != nil {
		return err
	}
	if reviewCode == "" {
		return abort("Error: review code required")
	}
	r, err := s.reviews.GetByCode(ctx, reg.ID, reviewCode)
	if errors.Is(err, ErrNotFound) {
		return abort("Error: review does not exist")
	}
	if err != nil {
		return err
	}

	var targets []*patient.Patient
	if patientID == "" {
		if targets, err = s.patients.RegistryPatients(ctx, reg.Code); err != nil {
			return err
		}
	} else {
		id, perr := uuid.Parse(patientID)
		var p *patient.Patient
		if perr == nil {
			p, err = s.patients.Lookup(ctx, id)
		}
		if perr != nil || errors.Is(err, patient.ErrNotFound) {
			return abort(fmt.Sprintf("patient with id %s does not exist", patientID))
		}
		if err != nil {
			return err
		}
		targets = []*patient.Patient{p}
	}

	for _, p := range targets {
		url, err := s.CreatePatientReview(ctx, r, reg, p)
		switch {
		case err == nil:
			fmt.Fprintf(out, "review %s patient %s url = %s\n", r.Code, p, url)
		case errors.Is(err, ErrNoUser):
			fmt.Fprintf(out, "patient %s has no associated user\n", p)
		case errors.Is(err, ErrNoParent):
			fmt.Fprintf(out, "patient %s has no associated parent\n", p)
		default:
			return fmt.Errorf("review %s for patient %s: %w", r.Code, p.ID, err)
		}
	}
	s.logger.Info().Str("registry", reg.Code).Str("review", r.Code).Int("patients", len(targets)).Msg("reviews created")
	return nil
}

// -- Token access --

func (s *Service) byToken(ctx context.Context, token string) (*PatientReview, error) {
	t, err := uuid.Parse(token)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.patientReviews.GetByToken(ctx, t)
}

// ReviewView is what a reviewer sees when opening a review link.
type ReviewView struct {
	Review        *Review        `json:"review"`
	PatientReview *PatientReview `json:"patient_review"`
	Items         []*ReviewItem  `json:"review_items"`
}

// GetByToken opens a patient review with its items.
func (s *Service) GetByToken(ctx context.Context, token string) (*ReviewView, error) {
	pr, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	r, err := s.reviews.GetByID(ctx, pr.ReviewID)
	if err != nil {
		return nil, err
	}
	if pr.Items, err = s.patientReviews.ListItems(ctx, pr.ID); err != nil {
		return nil, err
	}
	items, err := s.reviews.ListItems(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &ReviewView{Review: r, PatientReview: pr, Items: items}, nil
}

// UpdateItem stores the reviewer's answers for one item and marks it changed.
func (s *Service) UpdateItem(ctx context.Context, token string, itemID uuid.UUID, data map[string]interface{}) (*PatientReviewItem, error) {
	pr, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if pr.State == StateFinished {
		return nil, ErrReviewFinished
	}
	item, err := s.patientReviews.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.PatientReviewID != pr.ID {
		return nil, ErrNotFound
	}
	item.Data = data
	item.HasChanged = true
	item.State = StateInProgress

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.patientReviews.UpdateItem(ctx, item); err != nil {
			return err
		}
		if pr.State == StateCreated {
			return s.patientReviews.SetState(ctx, pr.ID, StateInProgress)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Complete finishes the review behind token.
func (s *Service) Complete(ctx context.Context, token string) error {
	pr, err := s.byToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.patientReviews.Complete(ctx, pr.ID); err != nil {
		return err
	}
	s.logger.Info().Str("patient_review_id", pr.ID.String()).Msg("review completed")
	return nil
}

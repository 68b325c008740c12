package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdrf/rdrf/internal/platform/db"
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func expectRow(tag interface{ RowsAffected() int64 }) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Review Repository --

type reviewRepoPG struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepoPG{pool: pool}
}

func (r *reviewRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	rv.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO review (id, registry_id, code, name, review_type) VALUES ($1, $2, $3, $4, $5)`,
		rv.ID, rv.RegistryID, rv.Code, rv.Name, rv.ReviewType)
	return translate(err)
}

func (r *reviewRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx, `
		SELECT id, registry_id, code, name, review_type FROM review WHERE id = $1`, id))
}

func (r *reviewRepoPG) GetByCode(ctx context.Context, registryID uuid.UUID, code string) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx, `
		SELECT id, registry_id, code, name, review_type FROM review WHERE registry_id = $1 AND code = $2`,
		registryID, code))
}

func (r *reviewRepoPG) ListByRegistry(ctx context.Context, registryID uuid.UUID) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, registry_id, code, name, review_type FROM review WHERE registry_id = $1 ORDER BY code`, registryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Review])
}

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	if err := row.Scan(&rv.ID, &rv.RegistryID, &rv.Code, &rv.Name, &rv.ReviewType); err != nil {
		return nil, translate(err)
	}
	return &rv, nil
}

func (r *reviewRepoPG) AddItem(ctx context.Context, item *ReviewItem) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO review_item (id, review_id, code, category, name, position, form, section, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.ReviewID, item.Code, item.Category, item.Name, item.Position, item.Form, item.Section, item.Fields)
	return translate(err)
}

func (r *reviewRepoPG) ListItems(ctx context.Context, reviewID uuid.UUID) ([]*ReviewItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, review_id, code, category, name, position, form, section, fields
		FROM review_item WHERE review_id = $1 ORDER BY position, code`, reviewID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[ReviewItem])
}

// -- Patient Review Repository --

type patientReviewRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientReviewRepo(pool *pgxpool.Pool) PatientReviewRepository {
	return &patientReviewRepoPG{pool: pool}
}

func (r *patientReviewRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

func (r *patientReviewRepoPG) Create(ctx context.Context, pr *PatientReview) error {
	pr.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_review (id, review_id, patient_id, user_id, parent_id, token, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		pr.ID, pr.ReviewID, pr.PatientID, pr.UserID, pr.ParentID, pr.Token, pr.State).Scan(&pr.CreatedAt)
	return translate(err)
}

func (r *patientReviewRepoPG) GetByToken(ctx context.Context, token uuid.UUID) (*PatientReview, error) {
	var pr PatientReview
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, review_id, patient_id, user_id, parent_id, token, state, created_at, completed_at
		FROM patient_review WHERE token = $1`, token).
		Scan(&pr.ID, &pr.ReviewID, &pr.PatientID, &pr.UserID, &pr.ParentID, &pr.Token, &pr.State, &pr.CreatedAt, &pr.CompletedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &pr, nil
}

const itemCols = `id, patient_review_id, review_item_id, has_changed, data, state`

func (r *patientReviewRepoPG) AddItem(ctx context.Context, item *PatientReviewItem) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_review_item (`+itemCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.PatientReviewID, item.ReviewItemID, item.HasChanged, item.Data, item.State)
	return translate(err)
}

func (r *patientReviewRepoPG) ListItems(ctx context.Context, patientReviewID uuid.UUID) ([]*PatientReviewItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pri.id, pri.patient_review_id, pri.review_item_id, pri.has_changed, pri.data, pri.state
		FROM patient_review_item pri
		JOIN review_item ri ON ri.id = pri.review_item_id
		WHERE pri.patient_review_id = $1
		ORDER BY ri.position, ri.code`, patientReviewID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[PatientReviewItem])
}

func (r *patientReviewRepoPG) GetItem(ctx context.Context, id uuid.UUID) (*PatientReviewItem, error) {
	var item PatientReviewItem
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM patient_review_item WHERE id = $1`, id).
		Scan(&item.ID, &item.PatientReviewID, &item.ReviewItemID, &item.HasChanged, &item.Data, &item.State)
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *patientReviewRepoPG) UpdateItem(ctx context.Context, item *PatientReviewItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_review_item SET has_changed = $2, data = $3, state = $4 WHERE id = $1`,
		item.ID, item.HasChanged, item.Data, item.State)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *patientReviewRepoPG) SetState(ctx context.Context, id uuid.UUID, state string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patient_review SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *patientReviewRepoPG) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_review SET state = $2, completed_at = NOW() WHERE id = $1 AND state <> $2`,
		id, StateFinished)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReviewFinished
	}
	return nil
}

package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdrf/rdrf/internal/platform/db"
)

// translate maps driver errors onto the package sentinels.
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

// -- Registry Repository --

type registryRepoPG struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) RegistryRepository {
	return &registryRepoPG{pool: pool}
}

func (r *registryRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const registryCols = `id, name, code, description, splash_screen, patient_splash_screen, metadata, created_at, updated_at`

func (r *registryRepoPG) Create(ctx context.Context, reg *Registry) error {
	reg.ID = uuid.New()
	if reg.Metadata == nil {
		reg.Metadata = map[string]interface{}{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO registry (id, name, code, description, splash_screen, patient_splash_screen, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		reg.ID, reg.Name, reg.Code, reg.Description, reg.SplashScreen, reg.PatientSplashScreen, reg.Metadata,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	return translate(err)
}

func (r *registryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Registry, error) {
	return scanRegistry(r.conn(ctx).QueryRow(ctx, `SELECT `+registryCols+` FROM registry WHERE id = $1`, id))
}

func (r *registryRepoPG) GetByCode(ctx context.Context, code string) (*Registry, error) {
	return scanRegistry(r.conn(ctx).QueryRow(ctx, `SELECT `+registryCols+` FROM registry WHERE code = $1`, code))
}

func (r *registryRepoPG) Update(ctx context.Context, reg *Registry) error {
	if reg.Metadata == nil {
		reg.Metadata = map[string]interface{}{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE registry SET name = $2, code = $3, description = $4, splash_screen = $5,
			patient_splash_screen = $6, metadata = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		reg.ID, reg.Name, reg.Code, reg.Description, reg.SplashScreen, reg.PatientSplashScreen, reg.Metadata,
	).Scan(&reg.UpdatedAt)
	return translate(err)
}

func (r *registryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM registry WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *registryRepoPG) List(ctx context.Context, limit, offset int) ([]*Registry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM registry`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+registryCols+` FROM registry ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Registry
	for rows.Next() {
		reg, err := scanRegistry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, reg)
	}
	return out, total, rows.Err()
}

func scanRegistry(row pgx.Row) (*Registry, error) {
	var reg Registry
	err := row.Scan(&reg.ID, &reg.Name, &reg.Code, &reg.Description, &reg.SplashScreen,
		&reg.PatientSplashScreen, &reg.Metadata, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &reg, nil
}

// -- Form Repository --

type formRepoPG struct {
	pool *pgxpool.Pool
}

func NewFormRepo(pool *pgxpool.Pool) FormRepository {
	return &formRepoPG{pool: pool}
}

func (r *formRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const formCols = `id, registry_id, name, sections, is_questionnaire, position`

func (r *formRepoPG) Create(ctx context.Context, f *RegistryForm) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO registry_form (id, registry_id, name, sections, is_questionnaire, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.RegistryID, f.Name, f.Sections, f.IsQuestionnaire, f.Position)
	return translate(err)
}

func (r *formRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RegistryForm, error) {
	return scanForm(r.conn(ctx).QueryRow(ctx, `SELECT `+formCols+` FROM registry_form WHERE id = $1`, id))
}

func (r *formRepoPG) Update(ctx context.Context, f *RegistryForm) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE registry_form SET name = $2, sections = $3, is_questionnaire = $4, position = $5
		WHERE id = $1`,
		f.ID, f.Name, f.Sections, f.IsQuestionnaire, f.Position)
	if err != nil {
		return translate(err)
	}
	return expectRow(tag)
}

func (r *formRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM registry_form WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *formRepoPG) ListByRegistry(ctx context.Context, registryID uuid.UUID) ([]*RegistryForm, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+formCols+` FROM registry_form WHERE registry_id = $1 ORDER BY position, name`, registryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RegistryForm
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *formRepoPG) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id FROM registry_form`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanForm(row pgx.Row) (*RegistryForm, error) {
	var f RegistryForm
	if err := row.Scan(&f.ID, &f.RegistryID, &f.Name, &f.Sections, &f.IsQuestionnaire, &f.Position); err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

// -- Section Repository --

type sectionRepoPG struct {
	pool *pgxpool.Pool
}

func NewSectionRepo(pool *pgxpool.Pool) SectionRepository {
	return &sectionRepoPG{pool: pool}
}

func (r *sectionRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const sectionCols = `id, code, display_name, elements, allow_multiple, extra`

func (r *sectionRepoPG) Create(ctx context.Context, s *Section) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO section (id, code, display_name, elements, allow_multiple, extra)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Code, s.DisplayName, s.Elements, s.AllowMultiple, s.Extra)
	return translate(err)
}

func (r *sectionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Section, error) {
	return scanSection(r.conn(ctx).QueryRow(ctx, `SELECT `+sectionCols+` FROM section WHERE id = $1`, id))
}

func (r *sectionRepoPG) GetByCode(ctx context.Context, code string) (*Section, error) {
	return scanSection(r.conn(ctx).QueryRow(ctx, `SELECT `+sectionCols+` FROM section WHERE code = $1`, code))
}

func (r *sectionRepoPG) Update(ctx context.Context, s *Section) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE section SET code = $2, display_name = $3, elements = $4, allow_multiple = $5, extra = $6
		WHERE id = $1`,
		s.ID, s.Code, s.DisplayName, s.Elements, s.AllowMultiple, s.Extra)
	if err != nil {
		return translate(err)
	}
	return expectRow(tag)
}

func (r *sectionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM section WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *sectionRepoPG) List(ctx context.Context, limit, offset int) ([]*Section, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM section`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sectionCols+` FROM section ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func scanSection(row pgx.Row) (*Section, error) {
	var s Section
	if err := row.Scan(&s.ID, &s.Code, &s.DisplayName, &s.Elements, &s.AllowMultiple, &s.Extra); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// -- CDE Repository --

type cdeRepoPG struct {
	pool *pgxpool.Pool
}

func NewCDERepo(pool *pgxpool.Pool) CDERepository {
	return &cdeRepoPG{pool: pool}
}

func (r *cdeRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const cdeCols = `code, name, description, datatype, instructions, pv_group, allow_multiple,
	max_length, max_value, min_value, is_required, pattern, widget_name, calculation, questionnaire_text`

func (r *cdeRepoPG) Create(ctx context.Context, c *CommonDataElement) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cde (`+cdeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.Code, c.Name, c.Description, c.Datatype, c.Instructions, c.PVGroup, c.AllowMultiple,
		c.MaxLength, c.MaxValue, c.MinValue, c.IsRequired, c.Pattern, c.WidgetName, c.Calculation, c.QuestionnaireText)
	return translate(err)
}

func (r *cdeRepoPG) GetByCode(ctx context.Context, code string) (*CommonDataElement, error) {
	return scanCDE(r.conn(ctx).QueryRow(ctx, `SELECT `+cdeCols+` FROM cde WHERE code = $1`, code))
}

func (r *cdeRepoPG) Update(ctx context.Context, c *CommonDataElement) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cde SET name = $2, description = $3, datatype = $4, instructions = $5, pv_group = $6,
			allow_multiple = $7, max_length = $8, max_value = $9, min_value = $10, is_required = $11,
			pattern = $12, widget_name = $13, calculation = $14, questionnaire_text = $15
		WHERE code = $1`,
		c.Code, c.Name, c.Description, c.Datatype, c.Instructions, c.PVGroup, c.AllowMultiple,
		c.MaxLength, c.MaxValue, c.MinValue, c.IsRequired, c.Pattern, c.WidgetName, c.Calculation, c.QuestionnaireText)
	if err != nil {
		return translate(err)
	}
	return expectRow(tag)
}

func (r *cdeRepoPG) Delete(ctx context.Context, code string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cde WHERE code = $1`, code)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *cdeRepoPG) List(ctx context.Context, limit, offset int) ([]*CommonDataElement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cde`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cdeCols+` FROM cde ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CommonDataElement
	for rows.Next() {
		c, err := scanCDE(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *cdeRepoPG) CreateGroup(ctx context.Context, g *PermittedValueGroup) error {
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO cde_pv_group (code) VALUES ($1)`, g.Code)
	return translate(err)
}

func (r *cdeRepoPG) GetGroup(ctx context.Context, code string) (*PermittedValueGroup, error) {
	var g PermittedValueGroup
	if err := r.conn(ctx).QueryRow(ctx, `SELECT code FROM cde_pv_group WHERE code = $1`, code).Scan(&g.Code); err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (r *cdeRepoPG) ListGroups(ctx context.Context) ([]*PermittedValueGroup, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT code FROM cde_pv_group ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermittedValueGroup
	for rows.Next() {
		var g PermittedValueGroup
		if err := rows.Scan(&g.Code); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (r *cdeRepoPG) AddValue(ctx context.Context, pv *PermittedValue) error {
	pv.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cde_pv (id, pv_group, code, value, description, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		pv.ID, pv.GroupCode, pv.Code, pv.Value, pv.Description, pv.Position)
	return translate(err)
}

func (r *cdeRepoPG) ListValues(ctx context.Context, groupCode string) ([]*PermittedValue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, pv_group, code, value, description, position
		FROM cde_pv WHERE pv_group = $1
		ORDER BY position NULLS LAST, code`, groupCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermittedValue
	for rows.Next() {
		var pv PermittedValue
		if err := rows.Scan(&pv.ID, &pv.GroupCode, &pv.Code, &pv.Value, &pv.Description, &pv.Position); err != nil {
			return nil, err
		}
		out = append(out, &pv)
	}
	return out, rows.Err()
}

func scanCDE(row pgx.Row) (*CommonDataElement, error) {
	var c CommonDataElement
	err := row.Scan(&c.Code, &c.Name, &c.Description, &c.Datatype, &c.Instructions, &c.PVGroup, &c.AllowMultiple,
		&c.MaxLength, &c.MaxValue, &c.MinValue, &c.IsRequired, &c.Pattern, &c.WidgetName, &c.Calculation, &c.QuestionnaireText)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// -- Wizard Repository --

type wizardRepoPG struct {
	pool *pgxpool.Pool
}

func NewWizardRepo(pool *pgxpool.Pool) WizardRepository {
	return &wizardRepoPG{pool: pool}
}

func (r *wizardRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

func (r *wizardRepoPG) Create(ctx context.Context, w *Wizard) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO wizard (id, registry, forms, rules) VALUES ($1, $2, $3, $4)`,
		w.ID, w.Registry, w.Forms, w.Rules)
	return translate(err)
}

func (r *wizardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Wizard, error) {
	var w Wizard
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, registry, forms, rules FROM wizard WHERE id = $1`, id).
		Scan(&w.ID, &w.Registry, &w.Forms, &w.Rules)
	if err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *wizardRepoPG) List(ctx context.Context, registryCode string) ([]*Wizard, error) {
	query := `SELECT id, registry, forms, rules FROM wizard`
	var args []interface{}
	if registryCode != "" {
		query += ` WHERE registry = $1`
		args = append(args, registryCode)
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY registry`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Wizard
	for rows.Next() {
		var w Wizard
		if err := rows.Scan(&w.ID, &w.Registry, &w.Forms, &w.Rules); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// -- Questionnaire Response Repository --

type responseRepoPG struct {
	pool *pgxpool.Pool
}

func NewResponseRepo(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

func (r *responseRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const responseCols = `id, registry_id, date_submitted, processed, patient_id, answers`

func (r *responseRepoPG) Create(ctx context.Context, qr *QuestionnaireResponse) error {
	qr.ID = uuid.New()
	if qr.Answers == nil {
		qr.Answers = map[string]interface{}{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire_response (id, registry_id, answers)
		VALUES ($1, $2, $3)
		RETURNING date_submitted, processed`,
		qr.ID, qr.RegistryID, qr.Answers,
	).Scan(&qr.DateSubmitted, &qr.Processed)
	return translate(err)
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx, `SELECT `+responseCols+` FROM questionnaire_response WHERE id = $1`, id))
}

func (r *responseRepoPG) List(ctx context.Context, registryID uuid.UUID, processed *bool, limit, offset int) ([]*QuestionnaireResponse, int, error) {
	where := ` WHERE registry_id = $1`
	args := []interface{}{registryID}
	if processed != nil {
		where += ` AND processed = $2`
		args = append(args, *processed)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM questionnaire_response`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM questionnaire_response%s ORDER BY date_submitted DESC LIMIT $%d OFFSET $%d`,
		responseCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*QuestionnaireResponse
	for rows.Next() {
		qr, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, qr)
	}
	return out, total, rows.Err()
}

func (r *responseRepoPG) MarkProcessed(ctx context.Context, id, patientID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE questionnaire_response SET processed = TRUE, patient_id = $2
		WHERE id = $1 AND processed = FALSE`, id, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}
	return nil
}

func scanResponse(row pgx.Row) (*QuestionnaireResponse, error) {
	var qr QuestionnaireResponse
	if err := row.Scan(&qr.ID, &qr.RegistryID, &qr.DateSubmitted, &qr.Processed, &qr.PatientID, &qr.Answers); err != nil {
		return nil, translate(err)
	}
	return &qr, nil
}

package patient

import (
	"context"
	"fmt"
	"strings"

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
		return ErrDuplicatePatient
	}
	return err
}

func expectRow(tag interface{ RowsAffected() int64 }) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const patientCols = `p.id, p.working_group_id, p.consent, p.consent_clinical_trials, p.consent_sent_information,
	p.family_name, p.given_names, p.maiden_name, p.umrn, p.date_of_birth, p.place_of_birth,
	p.country_of_birth, p.ethnic_origin, p.date_of_migration, p.sex,
	p.home_phone, p.mobile_phone, p.work_phone, p.email,
	p.next_of_kin_family_name, p.next_of_kin_given_names, p.next_of_kin_relationship,
	p.next_of_kin_address, p.next_of_kin_suburb, p.next_of_kin_state, p.next_of_kin_postcode,
	p.next_of_kin_home_phone, p.next_of_kin_mobile_phone, p.next_of_kin_work_phone,
	p.next_of_kin_email, p.next_of_kin_parent_place_of_birth,
	p.clinician_user_id, p.user_id, p.active, p.inactive_reason, p.cde_values,
	p.created_at, p.updated_at,
	wg.name,
	COALESCE((
		SELECT json_agg(json_build_object('id', r.id, 'code', r.code, 'name', r.name) ORDER BY r.name)
		FROM patient_registry pr JOIN registry r ON r.id = pr.registry_id
		WHERE pr.patient_id = p.id
	), '[]'::json)`

const patientFrom = ` FROM patient p JOIN working_group wg ON wg.id = p.working_group_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.CDEValues == nil {
		p.CDEValues = map[string]interface{}{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, working_group_id, consent, consent_clinical_trials, consent_sent_information,
			family_name, given_names, maiden_name, umrn, date_of_birth, place_of_birth,
			country_of_birth, ethnic_origin, date_of_migration, sex,
			home_phone, mobile_phone, work_phone, email,
			next_of_kin_family_name, next_of_kin_given_names, next_of_kin_relationship,
			next_of_kin_address, next_of_kin_suburb, next_of_kin_state, next_of_kin_postcode,
			next_of_kin_home_phone, next_of_kin_mobile_phone, next_of_kin_work_phone,
			next_of_kin_email, next_of_kin_parent_place_of_birth,
			clinician_user_id, user_id, active, inactive_reason, cde_values
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36
		)
		RETURNING created_at, updated_at`,
		p.ID, p.WorkingGroupID, p.Consent, p.ConsentClinicalTrials, p.ConsentSentInformation,
		p.FamilyName, p.GivenNames, p.MaidenName, p.UMRN, p.DateOfBirth, p.PlaceOfBirth,
		p.CountryOfBirth, p.EthnicOrigin, p.DateOfMigration, p.Sex,
		p.HomePhone, p.MobilePhone, p.WorkPhone, p.Email,
		p.NextOfKinFamilyName, p.NextOfKinGivenNames, p.NextOfKinRelationship,
		p.NextOfKinAddress, p.NextOfKinSuburb, p.NextOfKinState, p.NextOfKinPostcode,
		p.NextOfKinHomePhone, p.NextOfKinMobilePhone, p.NextOfKinWorkPhone,
		p.NextOfKinEmail, p.NextOfKinParentPlaceOfBirth,
		p.ClinicianUserID, p.UserID, p.Active, p.InactiveReason, p.CDEValues,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	if p.CDEValues == nil {
		p.CDEValues = map[string]interface{}{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			working_group_id = $2, consent = $3, consent_clinical_trials = $4, consent_sent_information = $5,
			family_name = $6, given_names = $7, maiden_name = $8, umrn = $9, date_of_birth = $10,
			place_of_birth = $11, country_of_birth = $12, ethnic_origin = $13, date_of_migration = $14, sex = $15,
			home_phone = $16, mobile_phone = $17, work_phone = $18, email = $19,
			next_of_kin_family_name = $20, next_of_kin_given_names = $21, next_of_kin_relationship = $22,
			next_of_kin_address = $23, next_of_kin_suburb = $24, next_of_kin_state = $25, next_of_kin_postcode = $26,
			next_of_kin_home_phone = $27, next_of_kin_mobile_phone = $28, next_of_kin_work_phone = $29,
			next_of_kin_email = $30, next_of_kin_parent_place_of_birth = $31,
			clinician_user_id = $32, user_id = $33, active = $34, inactive_reason = $35, cde_values = $36,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.WorkingGroupID, p.Consent, p.ConsentClinicalTrials, p.ConsentSentInformation,
		p.FamilyName, p.GivenNames, p.MaidenName, p.UMRN, p.DateOfBirth,
		p.PlaceOfBirth, p.CountryOfBirth, p.EthnicOrigin, p.DateOfMigration, p.Sex,
		p.HomePhone, p.MobilePhone, p.WorkPhone, p.Email,
		p.NextOfKinFamilyName, p.NextOfKinGivenNames, p.NextOfKinRelationship,
		p.NextOfKinAddress, p.NextOfKinSuburb, p.NextOfKinState, p.NextOfKinPostcode,
		p.NextOfKinHomePhone, p.NextOfKinMobilePhone, p.NextOfKinWorkPhone,
		p.NextOfKinEmail, p.NextOfKinParentPlaceOfBirth,
		p.ClinicianUserID, p.UserID, p.Active, p.InactiveReason, p.CDEValues,
	).Scan(&p.UpdatedAt)
	return translate(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func filterClause(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.ActiveOnly {
		conds = append(conds, "p.active")
	}
	if len(f.WorkingGroupIDs) > 0 {
		args = append(args, f.WorkingGroupIDs)
		conds = append(conds, fmt.Sprintf("p.working_group_id = ANY($%d)", len(args)))
	}
	if len(f.RegistryCodes) > 0 {
		args = append(args, f.RegistryCodes)
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_registry pr JOIN registry r ON r.id = pr.registry_id
			WHERE pr.patient_id = p.id AND r.code = ANY($%d))`, len(args)))
	}
	if f.Unallocated {
		conds = append(conds, "NOT EXISTS (SELECT 1 FROM patient_registry pr WHERE pr.patient_id = p.id)")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *patientRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY p.family_name, p.given_names, p.date_of_birth LIMIT $%d OFFSET $%d`,
		patientCols, patientFrom, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *patientRepoPG) Exists(ctx context.Context, familyName, givenNames string, workingGroupID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient WHERE family_name = $1 AND given_names = $2 AND working_group_id = $3)`,
		familyName, givenNames, workingGroupID).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) SetRegistries(ctx context.Context, patientID uuid.UUID, registryIDs []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_registry WHERE patient_id = $1`, patientID); err != nil {
		return err
	}
	for _, rid := range registryIDs {
		if _, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO patient_registry (patient_id, registry_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			patientID, rid); err != nil {
			return err
		}
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.WorkingGroupID, &p.Consent, &p.ConsentClinicalTrials, &p.ConsentSentInformation,
		&p.FamilyName, &p.GivenNames, &p.MaidenName, &p.UMRN, &p.DateOfBirth, &p.PlaceOfBirth,
		&p.CountryOfBirth, &p.EthnicOrigin, &p.DateOfMigration, &p.Sex,
		&p.HomePhone, &p.MobilePhone, &p.WorkPhone, &p.Email,
		&p.NextOfKinFamilyName, &p.NextOfKinGivenNames, &p.NextOfKinRelationship,
		&p.NextOfKinAddress, &p.NextOfKinSuburb, &p.NextOfKinState, &p.NextOfKinPostcode,
		&p.NextOfKinHomePhone, &p.NextOfKinMobilePhone, &p.NextOfKinWorkPhone,
		&p.NextOfKinEmail, &p.NextOfKinParentPlaceOfBirth,
		&p.ClinicianUserID, &p.UserID, &p.Active, &p.InactiveReason, &p.CDEValues,
		&p.CreatedAt, &p.UpdatedAt,
		&p.WorkingGroupName, &p.Registries,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Addresses

func (r *patientRepoPG) ListAddresses(ctx context.Context, patientID uuid.UUID) ([]*PatientAddress, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, address_type_id, address, suburb, state, postcode, country
		FROM patient_address WHERE patient_id = $1 ORDER BY address`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientAddress
	for rows.Next() {
		var a PatientAddress
		if err := rows.Scan(&a.ID, &a.PatientID, &a.AddressTypeID, &a.Address, &a.Suburb, &a.State, &a.Postcode, &a.Country); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAddress inserts a when it has no id yet and updates it otherwise.
func (r *patientRepoPG) SaveAddress(ctx context.Context, a *PatientAddress) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_address (id, patient_id, address_type_id, address, suburb, state, postcode, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.PatientID, a.AddressTypeID, a.Address, a.Suburb, a.State, a.Postcode, a.Country)
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_address SET address_type_id = $3, address = $4, suburb = $5, state = $6, postcode = $7, country = $8
		WHERE id = $1 AND patient_id = $2`,
		a.ID, a.PatientID, a.AddressTypeID, a.Address, a.Suburb, a.State, a.Postcode, a.Country)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *patientRepoPG) DeleteAddress(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_address WHERE id = $1`, id)
	return err
}

// Doctors

func (r *patientRepoPG) ListDoctors(ctx context.Context, patientID uuid.UUID) ([]*PatientDoctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, doctor_id, relationship FROM patient_doctor WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientDoctor
	for rows.Next() {
		var pd PatientDoctor
		if err := rows.Scan(&pd.ID, &pd.PatientID, &pd.DoctorID, &pd.Relationship); err != nil {
			return nil, err
		}
		out = append(out, &pd)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) SaveDoctor(ctx context.Context, pd *PatientDoctor) error {
	if pd.ID == uuid.Nil {
		pd.ID = uuid.New()
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_doctor (id, patient_id, doctor_id, relationship) VALUES ($1, $2, $3, $4)`,
			pd.ID, pd.PatientID, pd.DoctorID, pd.Relationship)
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_doctor SET doctor_id = $3, relationship = $4 WHERE id = $1 AND patient_id = $2`,
		pd.ID, pd.PatientID, pd.DoctorID, pd.Relationship)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *patientRepoPG) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_doctor WHERE id = $1`, id)
	return err
}

// Consents

func (r *patientRepoPG) AddConsent(ctx context.Context, c *PatientConsent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_consent (id, patient_id, filename, content_type, size, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING uploaded_at`,
		c.ID, c.PatientID, c.FileName, c.ContentType, c.Size, c.StorageKey).Scan(&c.UploadedAt)
}

func (r *patientRepoPG) GetConsent(ctx context.Context, id uuid.UUID) (*PatientConsent, error) {
	var c PatientConsent
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, filename, content_type, size, storage_key, uploaded_at
		FROM patient_consent WHERE id = $1`, id).
		Scan(&c.ID, &c.PatientID, &c.FileName, &c.ContentType, &c.Size, &c.StorageKey, &c.UploadedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *patientRepoPG) ListConsents(ctx context.Context, patientID uuid.UUID) ([]*PatientConsent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, filename, content_type, size, storage_key, uploaded_at
		FROM patient_consent WHERE patient_id = $1 ORDER BY uploaded_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientConsent
	for rows.Next() {
		var c PatientConsent
		if err := rows.Scan(&c.ID, &c.PatientID, &c.FileName, &c.ContentType, &c.Size, &c.StorageKey, &c.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) DeleteConsent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_consent WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

// Parents

func (r *patientRepoPG) AddParent(ctx context.Context, pg *ParentGuardian) error {
	pg.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO parent_guardian (id, patient_id, user_id, family_name, given_names)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		pg.ID, pg.PatientID, pg.UserID, pg.FamilyName, pg.GivenNames).Scan(&pg.CreatedAt)
}

func (r *patientRepoPG) ListParents(ctx context.Context, patientID uuid.UUID) ([]*ParentGuardian, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, user_id, family_name, given_names, created_at
		FROM parent_guardian WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ParentGuardian
	for rows.Next() {
		var pg ParentGuardian
		if err := rows.Scan(&pg.ID, &pg.PatientID, &pg.UserID, &pg.FamilyName, &pg.GivenNames, &pg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &pg)
	}
	return out, rows.Err()
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const doctorCols = `id, family_name, given_names, surgery_name, speciality, address, suburb, state, phone, email, created_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, family_name, given_names, surgery_name, speciality, address, suburb, state, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		d.ID, d.FamilyName, d.GivenNames, d.SurgeryName, d.Speciality, d.Address, d.Suburb, d.State, d.Phone, d.Email,
	).Scan(&d.CreatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET family_name = $2, given_names = $3, surgery_name = $4, speciality = $5,
			address = $6, suburb = $7, state = $8, phone = $9, email = $10
		WHERE id = $1`,
		d.ID, d.FamilyName, d.GivenNames, d.SurgeryName, d.Speciality, d.Address, d.Suburb, d.State, d.Phone, d.Email)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(tag)
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctor ORDER BY family_name, given_names LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FamilyName, &d.GivenNames, &d.SurgeryName, &d.Speciality,
		&d.Address, &d.Suburb, &d.State, &d.Phone, &d.Email, &d.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// -- Lookup Repository --

type lookupRepoPG struct {
	pool *pgxpool.Pool
}

func NewLookupRepo(pool *pgxpool.Pool) LookupRepository {
	return &lookupRepoPG{pool: pool}
}

func (r *lookupRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

func (r *lookupRepoPG) States(ctx context.Context) ([]*State, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT short_name, name FROM state ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[State])
}

func (r *lookupRepoPG) Relationships(ctx context.Context) ([]*NextOfKinRelationship, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, relationship FROM next_of_kin_relationship ORDER BY relationship`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[NextOfKinRelationship])
}

func (r *lookupRepoPG) AddressTypes(ctx context.Context) ([]*AddressType, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, type, description FROM address_type ORDER BY type`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[AddressType])
}

func (r *lookupRepoPG) WorkingGroups(ctx context.Context) ([]*WorkingGroup, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM working_group ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[WorkingGroup])
}

func (r *lookupRepoPG) GetWorkingGroup(ctx context.Context, id uuid.UUID) (*WorkingGroup, error) {
	var wg WorkingGroup
	if err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM working_group WHERE id = $1`, id).Scan(&wg.ID, &wg.Name); err != nil {
		return nil, translate(err)
	}
	return &wg, nil
}

func (r *lookupRepoPG) CreateWorkingGroup(ctx context.Context, wg *WorkingGroup) error {
	wg.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO working_group (id, name) VALUES ($1, $2)`, wg.ID, wg.Name)
	return err
}

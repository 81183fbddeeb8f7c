package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dossiers/dossiers/internal/platform/db"
)

const uniqueViolation = "23505"

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, patient_id, last_name, first_name,
	weight, height, bmi, contact, emergency_contact,
	hospitalizations, allergies, treatments,
	version_id, created_at, updated_at`

// sortColumns maps the sortable data fields to their columns.
var sortColumns = map[string]string{
	"patientId": "patient_id",
	"lastName":  "last_name",
	"firstName": "first_name",
	"bmi":       "bmi",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

const defaultOrder = "last_name, first_name, patient_id"

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	normalize(p)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			id, patient_id, last_name, first_name,
			weight, height, bmi, contact, emergency_contact,
			hospitalizations, allergies, treatments
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING version_id, created_at, updated_at`,
		p.ID, p.PatientID, p.LastName, p.FirstName,
		p.Weight, p.Height, p.BMI, p.Contact, p.EmergencyContact,
		p.Hospitalizations, p.Allergies, p.Treatments,
	).Scan(&p.VersionID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

// GetByID locks the row when called inside a transaction, so a read
// followed by Update cannot interleave with another writer.
func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	sql := `SELECT ` + patientCols + ` FROM patients WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		sql += ` FOR UPDATE`
	}
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, patientID))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	normalize(p)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			patient_id=$2, last_name=$3, first_name=$4,
			weight=$5, height=$6, bmi=$7, contact=$8, emergency_contact=$9,
			hospitalizations=$10, allergies=$11, treatments=$12,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version_id, created_at, updated_at`,
		p.ID, p.PatientID, p.LastName, p.FirstName,
		p.Weight, p.Height, p.BMI, p.Contact, p.EmergencyContact,
		p.Hospitalizations, p.Allergies, p.Treatments,
	).Scan(&p.VersionID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, params SearchParams, sort string, limit, offset int) ([]*Patient, int, error) {
	q := db.NewQuery("patients", patientCols)
	if params.Name != "" {
		q.AddContains(params.Name, "last_name", "first_name")
	}
	if params.PatientID != "" {
		q.Add(fmt.Sprintf("patient_id = $%d", q.Idx()), params.PatientID)
	}
	q.ApplySort(sort, defaultOrder, sortColumns)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.LastName, &p.FirstName,
		&p.Weight, &p.Height, &p.BMI, &p.Contact, &p.EmergencyContact,
		&p.Hospitalizations, &p.Allergies, &p.Treatments,
		&p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// normalize stores absent repeating groups as empty JSON arrays.
func normalize(p *Patient) {
	if p.Hospitalizations == nil {
		p.Hospitalizations = []Hospitalization{}
	}
	if p.Allergies == nil {
		p.Allergies = []Allergy{}
	}
	if p.Treatments == nil {
		p.Treatments = []Treatment{}
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicatePatientID, pgErr.Detail)
	}
	return err
}

package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("patient not found")
	ErrDuplicatePatientID = errors.New("patient id already in use")
	ErrVersionConflict    = errors.New("patient was modified concurrently")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params SearchParams, sort string, limit, offset int) ([]*Patient, int, error)
}

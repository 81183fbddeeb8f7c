package patient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/db"
	"github.com/dossiers/dossiers/internal/platform/telemetry"
)

var tracer = otel.Tracer("github.com/dossiers/dossiers/internal/domain/patient")

// PrescriptionFile is a rendered prescription ready to download.
type PrescriptionFile struct {
	Filename string
	Data     []byte
}

type Service struct {
	repo    PatientRepository
	tx      db.TxRunner
	schema  *collection.Config
	labels  collection.RowLabelRegistry
	metrics *telemetry.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithMetrics counts writes, exports and validation failures on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used to date exports.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo PatientRepository, tx db.TxRunner, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		tx:     tx,
		schema: Collection(),
		labels: RowLabels(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the collection the service enforces.
func (s *Service) Schema() *collection.Config {
	return s.schema
}

// prepare runs the before-change hooks then validation over doc, and
// decodes the result.
func (s *Service) prepare(ctx context.Context, doc map[string]any, op collection.Operation) (*Patient, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	collection.StripSystemFields(doc)
	if err := s.schema.BeforeChange(ctx, doc, op, auth.UserFromContext(ctx)); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(doc); err != nil {
		s.metrics.ValidationFailed(s.schema.Slug)
		zerolog.Ctx(ctx).Debug().Err(err).Str("operation", string(op)).Msg("patient rejected")
		return nil, err
	}
	p, err := FromDocument(doc)
	if err != nil {
		return nil, &collection.ValidationError{Errors: decodeFieldErrors(err)}
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, doc map[string]any) (_ *Patient, err error) {
	ctx, span := tracer.Start(ctx, "patient.Create")
	defer func() { endSpan(span, err) }()

	p, err := s.prepare(ctx, doc, collection.OperationCreate)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("patient.id", p.ID.String()))
	s.metrics.PatientCreated()
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return s.repo.GetByPatientID(ctx, patientID)
}

// Update replaces the stored document with doc. A non-zero version must
// match the stored version.
func (s *Service) Update(ctx context.Context, id uuid.UUID, doc map[string]any, version int) (*Patient, error) {
	return s.save(ctx, "patient.Update", id, version, func(*Patient) (map[string]any, error) {
		return doc, nil
	})
}

// Patch merges the top-level fields of doc over the stored document, then
// saves it as Update does. Repeating groups present in doc replace the
// stored ones whole.
func (s *Service) Patch(ctx context.Context, id uuid.UUID, doc map[string]any, version int) (*Patient, error) {
	return s.save(ctx, "patient.Patch", id, version, func(existing *Patient) (map[string]any, error) {
		merged, err := ToDocument(existing)
		if err != nil {
			return nil, err
		}
		for k, v := range doc {
			merged[k] = v
		}
		return merged, nil
	})
}

func (s *Service) save(ctx context.Context, name string, id uuid.UUID, version int, build func(*Patient) (map[string]any, error)) (_ *Patient, err error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attribute.String("patient.id", id.String())))
	defer func() { endSpan(span, err) }()

	var out *Patient
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if version != 0 && version != existing.VersionID {
			return fmt.Errorf("%w: stored version %d, got %d", ErrVersionConflict, existing.VersionID, version)
		}
		doc, err := build(existing)
		if err != nil {
			return err
		}
		p, err := s.prepare(ctx, doc, collection.OperationUpdate)
		if err != nil {
			return err
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PatientUpdated()
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.PatientDeleted()
	return nil
}

func (s *Service) List(ctx context.Context, sort string, limit, offset int) ([]*Patient, int, error) {
	return s.Search(ctx, SearchParams{}, sort, limit, offset)
}

func (s *Service) Search(ctx context.Context, params SearchParams, sort string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

// Labels labels every repeating row of a stored patient.
func (s *Service) Labels(ctx context.Context, id uuid.UUID, locale string) ([]collection.LabelledArray, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := ToDocument(p)
	if err != nil {
		return nil, err
	}
	return s.FormLabels(doc, locale), nil
}

// FormLabels labels the rows of an unsaved document.
func (s *Service) FormLabels(doc map[string]any, locale string) []collection.LabelledArray {
	return s.schema.RowLabels(doc, s.labels, locale)
}

// Prescription renders the prescription of the stored treatment that path
// points at.
func (s *Service) Prescription(ctx context.Context, id uuid.UUID, path, locale string) (_ *PrescriptionFile, err error) {
	ctx, span := tracer.Start(ctx, "patient.Prescription", trace.WithAttributes(
		attribute.String("patient.id", id.String()),
		attribute.String("form.path", path),
	))
	defer func() { endSpan(span, err) }()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, _, err := ResolveTreatment(path, p.Treatments)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, NewPrescriptionInput(p, t), locale)
}

// PrescriptionFromForm renders the prescription from unsaved form state,
// as the admin does before a record is saved.
func (s *Service) PrescriptionFromForm(ctx context.Context, path string, doc map[string]any, locale string) (_ *PrescriptionFile, err error) {
	ctx, span := tracer.Start(ctx, "patient.PrescriptionFromForm", trace.WithAttributes(
		attribute.String("form.path", path),
	))
	defer func() { endSpan(span, err) }()

	in, err := FormPrescription(path, doc)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, in, locale)
}

func (s *Service) render(ctx context.Context, in PrescriptionInput, locale string) (*PrescriptionFile, error) {
	now := s.now()
	var buf bytes.Buffer
	if err := RenderPrescription(&buf, in, now, locale); err != nil {
		return nil, err
	}
	s.metrics.PrescriptionExported()
	zerolog.Ctx(ctx).Info().
		Str("patient_id", in.PatientID).
		Int("medications", len(in.Treatment.Medications)).
		Int("bytes", buf.Len()).
		Msg("prescription exported")
	return &PrescriptionFile{
		Filename: PrescriptionFilename(in.LastName, in.FirstName, now),
		Data:     buf.Bytes(),
	}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, collection.ErrValidation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

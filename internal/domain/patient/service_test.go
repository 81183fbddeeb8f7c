package patient

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/db"
	"github.com/dossiers/dossiers/internal/platform/telemetry"
)

// -- Mock Patient Repository --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, other := range m.patients {
		if other.PatientID == p.PatientID {
			return ErrDuplicatePatientID
		}
	}
	p.ID = uuid.New()
	p.VersionID = 1
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientID == patientID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	existing, ok := m.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range m.patients {
		if id != p.ID && other.PatientID == p.PatientID {
			return ErrDuplicatePatientID
		}
	}
	p.VersionID = existing.VersionID + 1
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, params SearchParams, _ string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if params.PatientID != "" && p.PatientID != params.PatientID {
			continue
		}
		if params.Name != "" {
			name := strings.ToLower(params.Name)
			if !strings.Contains(strings.ToLower(p.LastName), name) && !strings.Contains(strings.ToLower(p.FirstName), name) {
				continue
			}
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastName < result[j].LastName })
	total := len(result)
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(opts ...Option) (*Service, *mockPatientRepo) {
	repo := newMockPatientRepo()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(repo, db.NoTx{}, opts...), repo
}

func nurseContext() context.Context {
	return auth.WithUser(context.Background(), &auth.User{ID: "u-1", Email: "infirmiere@clinique.fr", Roles: []string{auth.RoleNurse}})
}

// validDoc is a complete patient document as the admin submits it.
func validDoc() map[string]any {
	return map[string]any{
		"patientId":        "P-0001",
		"lastName":         "Dupont",
		"firstName":        "Marie",
		"weight":           70.0,
		"height":           175.0,
		"bmi":              99.0,
		"contact":          612345678.0,
		"emergencyContact": 698765432.0,
		"hospitalizations": []any{
			map[string]any{
				"hospitalName":  "CHU de Lyon",
				"admissionDate": "2025-01-10",
				"treatmentDays": []any{
					map[string]any{
						"date": "2025-01-11",
						"cares": []any{
							map[string]any{
								"time":        "08:30",
								"title":       "Pansement",
								"description": "<b>Réfection</b> du pansement",
								"operator":    "someone@else.fr",
							},
						},
					},
				},
			},
		},
		"allergies": []any{map[string]any{"name": "Pénicilline"}},
		"treatments": []any{
			map[string]any{
				"prescriptionDate": "2025-01-12",
				"physician":        "Martin",
				"diagnosis":        "Infection cutanée",
				"medications": []any{
					map[string]any{"name": "Amoxicilline", "dosage": "500mg", "frequency": "3x/jour", "duration": "7 jours"},
				},
			},
		},
	}
}

func TestService_Create(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Create(nurseContext(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.BMI == nil || *p.BMI != 22.86 {
		t.Errorf("expected computed BMI 22.86, got %v", p.BMI)
	}
	care := p.Hospitalizations[0].TreatmentDays[0].Cares[0]
	if care.Operator != "infirmiere@clinique.fr" {
		t.Errorf("expected operator stamped from user, got %q", care.Operator)
	}
	if care.Description != "Réfection du pansement" {
		t.Errorf("expected sanitized description, got %q", care.Description)
	}
	if p.Treatments[0].PrescriptionDate == nil || !p.Treatments[0].PrescriptionDate.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected prescription date: %v", p.Treatments[0].PrescriptionDate)
	}
}

func TestService_Create_WithoutUser(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Hospitalizations[0].TreatmentDays[0].Cares[0].Operator; got != OperatorSystem {
		t.Errorf("expected %q, got %q", OperatorSystem, got)
	}
}

func TestService_Create_ValidationError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	svc, repo := newTestService(WithMetrics(m))

	doc := validDoc()
	delete(doc, "lastName")
	doc["weight"] = "lourd"

	_, err := svc.Create(context.Background(), doc)
	var verr *collection.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	paths := map[string]bool{}
	for _, fe := range verr.Errors {
		paths[fe.Path] = true
	}
	if !paths["lastName"] || !paths["weight"] {
		t.Errorf("expected errors on lastName and weight, got %v", verr.Errors)
	}
	if len(repo.patients) != 0 {
		t.Error("invalid document must not be stored")
	}
	if got := testutil.ToFloat64(m.ValidationFailures.WithLabelValues(Slug)); got != 1 {
		t.Errorf("expected 1 validation failure counted, got %v", got)
	}
}

func TestService_Create_MedicationsMinRows(t *testing.T) {
	svc, _ := newTestService()

	doc := validDoc()
	tr := doc["treatments"].([]any)[0].(map[string]any)
	tr["medications"] = []any{map[string]any{"name": "Amoxicilline"}}

	_, err := svc.Create(context.Background(), doc)
	var verr *collection.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := "treatments.0.medications.0.dosage"
	found := false
	for _, fe := range verr.Errors {
		if fe.Path == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected error on %s, got %v", want, verr.Errors)
	}
}

func TestService_Create_Duplicate(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Create(context.Background(), validDoc()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Create(context.Background(), validDoc())
	if !errors.Is(err, ErrDuplicatePatientID) {
		t.Errorf("expected ErrDuplicatePatientID, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	svc, _ := newTestService(WithMetrics(m))

	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := validDoc()
	doc["weight"] = 80.0
	doc["height"] = 180.0
	updated, err := svc.Update(nurseContext(), p.ID, doc, p.VersionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.BMI == nil || *updated.BMI != 24.69 {
		t.Errorf("expected BMI 24.69, got %v", updated.BMI)
	}
	if updated.VersionID != 2 {
		t.Errorf("expected version 2, got %d", updated.VersionID)
	}
	if updated.ID != p.ID || !updated.CreatedAt.Equal(p.CreatedAt) {
		t.Error("update must keep the identity and creation time")
	}
	if got := testutil.ToFloat64(m.PatientsUpdated); got != 1 {
		t.Errorf("expected 1 update counted, got %v", got)
	}
}

func TestService_Update_VersionConflict(t *testing.T) {
	svc, _ := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Update(context.Background(), p.ID, validDoc(), p.VersionID+1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestService_Update_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Update(context.Background(), uuid.New(), validDoc(), 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Patch(t *testing.T) {
	svc, _ := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patched, err := svc.Patch(context.Background(), p.ID, map[string]any{"weight": 63.0}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patched.LastName != "Dupont" || len(patched.Treatments) != 1 {
		t.Error("patch must keep fields absent from the request")
	}
	if patched.BMI == nil || *patched.BMI != 20.57 {
		t.Errorf("expected BMI recomputed to 20.57, got %v", patched.BMI)
	}
}

func TestService_Patch_RequiredField(t *testing.T) {
	svc, _ := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Patch(context.Background(), p.ID, map[string]any{"height": nil}, 0)
	var verr *collection.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected height to be required, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.patients) != 0 {
		t.Error("expected patient to be deleted")
	}
	if err := svc.Delete(context.Background(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestService_Search(t *testing.T) {
	svc, _ := newTestService()
	for i, name := range []string{"Dupont", "Durand", "Martin"} {
		doc := validDoc()
		doc["patientId"] = "P-" + string(rune('A'+i))
		doc["lastName"] = name
		if _, err := svc.Create(context.Background(), doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, total, err := svc.Search(context.Background(), SearchParams{Name: "du"}, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("expected 2 matches, got %d (total %d)", len(got), total)
	}

	all, total, err := svc.List(context.Background(), "", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(all) != 2 {
		t.Errorf("expected page of 2 out of 3, got %d (total %d)", len(all), total)
	}

	byID, err := svc.GetByPatientID(context.Background(), "P-C")
	if err != nil || byID.LastName != "Martin" {
		t.Errorf("expected Martin, got %v (%v)", byID, err)
	}
}

func TestService_Labels(t *testing.T) {
	svc, _ := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	arrays, err := svc.Labels(context.Background(), p.ID, "fr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	labels := map[string]string{}
	var walk func([]collection.LabelledArray)
	walk = func(as []collection.LabelledArray) {
		for _, a := range as {
			for _, r := range a.Rows {
				labels[r.Path] = r.Label
				walk(r.Arrays)
			}
		}
	}
	walk(arrays)

	want := map[string]string{
		"hospitalizations.0":                         "CHU de Lyon",
		"hospitalizations.0.treatmentDays.0":         "11/01/2025",
		"hospitalizations.0.treatmentDays.0.cares.0": "08:30 - Pansement",
		"allergies.0":                                "Allergies 01",
		"treatments.0":                               "12/01/2025 - Dr. Martin",
		"treatments.0.medications.0":                 "Amoxicilline - 500mg",
	}
	for path, label := range want {
		if labels[path] != label {
			t.Errorf("%s: expected %q, got %q", path, label, labels[path])
		}
	}
}

func TestService_Prescription(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	svc, _ := newTestService(WithMetrics(m))
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := svc.Prescription(context.Background(), p.ID, "treatments.0.downloadPrescription", "fr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Filename != "Prescription_Dupont_Marie_2025-03-14.pdf" {
		t.Errorf("unexpected filename %q", f.Filename)
	}
	if !bytes.HasPrefix(f.Data, []byte("%PDF-")) {
		t.Error("expected a PDF document")
	}
	if got := testutil.ToFloat64(m.PrescriptionsExported); got != 1 {
		t.Errorf("expected 1 export counted, got %v", got)
	}
}

func TestService_Prescription_Errors(t *testing.T) {
	svc, _ := newTestService()
	p, err := svc.Create(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		path string
		want error
	}{
		{"", ErrPathMissing},
		{"allergies.0.name", ErrPathMalformed},
		{"treatments", ErrPathMalformed},
		{"treatments.1.downloadPrescription", ErrTreatmentNotFound},
		{"treatments.x.downloadPrescription", ErrTreatmentNotFound},
	}
	for _, tt := range tests {
		f, err := svc.Prescription(context.Background(), p.ID, tt.path, "fr")
		if !errors.Is(err, tt.want) {
			t.Errorf("path %q: expected %v, got %v", tt.path, tt.want, err)
		}
		if f != nil {
			t.Errorf("path %q: no document expected", tt.path)
		}
	}

	if _, err := svc.Prescription(context.Background(), uuid.New(), "treatments.0", "fr"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}
}

func TestService_PrescriptionFromForm(t *testing.T) {
	svc, _ := newTestService()

	doc := validDoc()
	doc["weight"] = "70"
	f, err := svc.PrescriptionFromForm(context.Background(), "treatments.0.downloadPrescription", doc, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Filename != "Prescription_Dupont_Marie_2025-03-14.pdf" {
		t.Errorf("unexpected filename %q", f.Filename)
	}

	doc["treatments"] = []any{nil}
	if _, err := svc.PrescriptionFromForm(context.Background(), "treatments.0.downloadPrescription", doc, "en"); !errors.Is(err, ErrTreatmentNotFound) {
		t.Errorf("expected ErrTreatmentNotFound for an empty row, got %v", err)
	}
}

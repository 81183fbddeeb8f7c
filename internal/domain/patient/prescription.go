package patient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// Path segments naming the treatments array in a form path. The French
// name is what older admin clients send.
const (
	treatmentsSegment      = "treatments"
	treatmentsSegmentAlias = "traitements"
)

var (
	ErrPathMissing       = errors.New("form path is missing")
	ErrPathMalformed     = errors.New("cannot determine the treatment index from the path")
	ErrTreatmentNotFound = errors.New("no treatment data for this index")
	ErrRenderFailed      = errors.New("prescription rendering failed")
)

var exportMessages = map[error]i18n.Text{
	ErrPathMissing: i18n.T(
		"Erreur: Le chemin du formulaire ('path') n'est pas disponible ou n'est pas une chaîne de caractères.",
		"Error: the form path ('path') is missing or is not a string.",
	),
	ErrPathMalformed: i18n.T(
		"Erreur: Impossible de déterminer l'index du traitement à partir du chemin.",
		"Error: unable to determine the treatment index from the path.",
	),
	ErrTreatmentNotFound: i18n.T(
		"Aucune donnée de traitement disponible pour cet index.",
		"No treatment data available for this index.",
	),
	ErrRenderFailed: i18n.T(
		"Erreur lors de la génération du PDF",
		"Error while generating the PDF",
	),
}

// ExportMessage returns the user-facing message for an export error, or ""
// when err is not one of the export errors.
func ExportMessage(err error, locale string) string {
	for sentinel, msg := range exportMessages {
		if errors.Is(err, sentinel) {
			return msg.Get(locale)
		}
	}
	return ""
}

// TreatmentIndexFromPath returns the row index that follows the first
// treatments segment of a dot-delimited form path, e.g. 2 for
// "treatments.2.downloadPrescription". A path without the segment, or
// ending on it, is malformed. A segment that is not a row index names no
// treatment.
func TreatmentIndexFromPath(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, ErrPathMissing
	}
	segs := strings.Split(path, ".")
	at := -1
	for i, s := range segs {
		if s == treatmentsSegment || s == treatmentsSegmentAlias {
			at = i
			break
		}
	}
	if at == -1 || at+1 >= len(segs) {
		return 0, fmt.Errorf("%w: %q", ErrPathMalformed, path)
	}
	idx, err := strconv.Atoi(segs[at+1])
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrTreatmentNotFound, segs[at+1])
	}
	return idx, nil
}

// ResolveTreatment picks the treatment a form path points at.
func ResolveTreatment(path string, treatments []Treatment) (Treatment, int, error) {
	idx, err := TreatmentIndexFromPath(path)
	if err != nil {
		return Treatment{}, 0, err
	}
	if idx >= len(treatments) {
		return Treatment{}, 0, fmt.Errorf("%w: %d", ErrTreatmentNotFound, idx)
	}
	return treatments[idx], idx, nil
}

// resolveTreatmentRow is ResolveTreatment over unsaved form state, where
// rows may be missing or empty.
func resolveTreatmentRow(path string, doc map[string]any) (map[string]any, error) {
	idx, err := TreatmentIndexFromPath(path)
	if err != nil {
		return nil, err
	}
	list, ok := doc[treatmentsSegment].([]any)
	if !ok {
		list, _ = doc[treatmentsSegmentAlias].([]any)
	}
	if idx >= len(list) {
		return nil, fmt.Errorf("%w: %d", ErrTreatmentNotFound, idx)
	}
	row, ok := list[idx].(map[string]any)
	if !ok || row == nil {
		return nil, fmt.Errorf("%w: %d", ErrTreatmentNotFound, idx)
	}
	return row, nil
}

// PrescriptionInput is everything printed on a prescription.
type PrescriptionInput struct {
	PatientID string
	LastName  string
	FirstName string
	Weight    *float64
	Height    *float64
	BMI       *float64
	Treatment Treatment
}

func NewPrescriptionInput(p *Patient, t Treatment) PrescriptionInput {
	return PrescriptionInput{
		PatientID: p.PatientID,
		LastName:  p.LastName,
		FirstName: p.FirstName,
		Weight:    p.Weight,
		Height:    p.Height,
		BMI:       p.BMI,
		Treatment: t,
	}
}

// FormPrescription builds the prescription for the treatment row at path
// of unsaved form state. Values are decoded leniently: the form may hold
// numbers as strings.
func FormPrescription(path string, doc map[string]any) (PrescriptionInput, error) {
	row, err := resolveTreatmentRow(path, doc)
	if err != nil {
		return PrescriptionInput{}, err
	}
	var t Treatment
	if err := decode(row, &t, true); err != nil {
		return PrescriptionInput{}, fmt.Errorf("%w: %v", ErrTreatmentNotFound, err)
	}
	scalars := make(map[string]any, len(prescriptionScalars))
	for _, k := range prescriptionScalars {
		if v, ok := doc[k]; ok {
			scalars[k] = v
		}
	}
	var p Patient
	if err := decode(scalars, &p, true); err != nil {
		return PrescriptionInput{}, fmt.Errorf("decode form patient: %w", err)
	}
	return NewPrescriptionInput(&p, t), nil
}

var prescriptionScalars = []string{"patientId", "lastName", "firstName", "weight", "height", "bmi"}

// PrescriptionFilename names the exported file after the patient and the
// UTC day of export.
func PrescriptionFilename(lastName, firstName string, now time.Time) string {
	return fmt.Sprintf("Prescription_%s_%s_%s.pdf", lastName, firstName, now.UTC().Format("2006-01-02"))
}

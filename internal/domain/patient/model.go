package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a stored patient record. Measurements are pointers so an
// absent value stays distinguishable from zero.
type Patient struct {
	ID               uuid.UUID         `json:"id"`
	PatientID        string            `json:"patientId"`
	LastName         string            `json:"lastName"`
	FirstName        string            `json:"firstName"`
	Weight           *float64          `json:"weight,omitempty"`
	Height           *float64          `json:"height,omitempty"`
	BMI              *float64          `json:"bmi,omitempty"`
	Contact          *float64          `json:"contact,omitempty"`
	EmergencyContact *float64          `json:"emergencyContact,omitempty"`
	Hospitalizations []Hospitalization `json:"hospitalizations,omitempty"`
	Allergies        []Allergy         `json:"allergies,omitempty"`
	Treatments       []Treatment       `json:"treatments,omitempty"`
	VersionID        int               `json:"versionId"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type Hospitalization struct {
	HospitalName  string         `json:"hospitalName"`
	AdmissionDate *time.Time     `json:"admissionDate,omitempty"`
	DischargeDate *time.Time     `json:"dischargeDate,omitempty"`
	TreatmentDays []TreatmentDay `json:"treatmentDays,omitempty"`
}

type TreatmentDay struct {
	Date  *time.Time `json:"date,omitempty"`
	Cares []Care     `json:"cares,omitempty"`
}

// Care is one care act performed during a treatment day. Operator is
// stamped by the server on every save.
type Care struct {
	Time        string `json:"time"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Note        string `json:"note,omitempty"`
	Operator    string `json:"operator,omitempty"`
}

type Allergy struct {
	Name string `json:"name"`
}

type Treatment struct {
	PrescriptionDate *time.Time   `json:"prescriptionDate,omitempty"`
	Physician        string       `json:"physician"`
	Medications      []Medication `json:"medications,omitempty"`
	Diagnosis        string       `json:"diagnosis,omitempty"`
	AdditionalNotes  string       `json:"additionalNotes,omitempty"`
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// SearchParams filters List results. Empty fields do not filter.
type SearchParams struct {
	// Name matches last or first name, case-insensitively, as a substring.
	Name      string
	PatientID string
}

func (p SearchParams) IsZero() bool {
	return p.Name == "" && p.PatientID == ""
}

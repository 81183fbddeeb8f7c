package patient

import (
	"strings"

	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

var (
	hospitalizationWord = i18n.T("Hospitalisation", "Hospitalization")
	treatmentDayWord    = i18n.T("Jour", "Day")
	careWord            = i18n.T("Soin", "Care")
	treatmentWord       = i18n.T("Traitement", "Treatment")
	medicationWord      = i18n.T("Médicament", "Medication")
)

// RowLabels returns the row label implementations the Patients schema
// refers to.
func RowLabels() collection.RowLabelRegistry {
	return collection.RowLabelRegistry{
		HospitalizationRowLabel: LabelHospitalization,
		TreatmentDayRowLabel:    LabelTreatmentDay,
		CareRowLabel:            LabelCare,
		TreatmentRowLabel:       LabelTreatment,
		MedicationRowLabel:      LabelMedication,
	}
}

func LabelHospitalization(row map[string]any, n int, locale string) string {
	if name := str(row, "hospitalName"); name != "" {
		return name
	}
	return collection.FallbackRowLabel(hospitalizationWord.Get(locale), n)
}

func LabelTreatmentDay(row map[string]any, n int, locale string) string {
	if d, ok := date(row, "date", locale); ok {
		return d
	}
	return collection.FallbackRowLabel(treatmentDayWord.Get(locale), n)
}

func LabelCare(row map[string]any, n int, locale string) string {
	at, title := str(row, "time"), str(row, "title")
	switch {
	case at != "" && title != "":
		return at + " - " + title
	case title != "":
		return title
	}
	return collection.FallbackRowLabel(careWord.Get(locale), n)
}

func LabelTreatment(row map[string]any, n int, locale string) string {
	d, ok := date(row, "prescriptionDate", locale)
	if !ok {
		return collection.FallbackRowLabel(treatmentWord.Get(locale), n)
	}
	if physician := str(row, "physician"); physician != "" {
		return d + " - Dr. " + physician
	}
	return d
}

func LabelMedication(row map[string]any, n int, locale string) string {
	name, dosage := str(row, "name"), str(row, "dosage")
	switch {
	case name != "" && dosage != "":
		return name + " - " + dosage
	case name != "":
		return name
	}
	return collection.FallbackRowLabel(medicationWord.Get(locale), n)
}

func str(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return strings.TrimSpace(s)
}

// date formats a date cell for display. Unparseable values count as absent.
func date(row map[string]any, key, locale string) (string, bool) {
	t, ok := i18n.ParseDate(str(row, key))
	if !ok {
		return "", false
	}
	return i18n.FormatDate(t, locale), true
}

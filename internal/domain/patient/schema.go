package patient

import (
	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// Slug is the collection slug patients are served under.
const Slug = "patients"

// Row label and field component names referenced by the schema.
const (
	HospitalizationRowLabel = "HospitalizationRowLabel"
	TreatmentDayRowLabel    = "TreatmentDayRowLabel"
	CareRowLabel            = "CareRowLabel"
	TreatmentRowLabel       = "TreatmentRowLabel"
	MedicationRowLabel      = "MedicationRowLabel"

	DownloadPrescriptionButton = "DownloadPrescriptionButton"
)

var dayOnly = &collection.DateOptions{PickerAppearance: "dayOnly", DisplayFormat: "dd/MM/yyyy"}

// Collection declares the Patients collection.
func Collection() *collection.Config {
	return &collection.Config{
		Slug: Slug,
		Labels: collection.Labels{
			Singular: i18n.T("Patient", "Patient"),
			Plural:   i18n.T("Patients", "Patients"),
		},
		Admin: collection.CollectionAdmin{
			UseAsTitle:     "lastName",
			DefaultColumns: []string{"patientId", "lastName", "firstName", "bmi"},
			Group:          i18n.T("Dossiers Médicaux", "Medical Records"),
		},
		Fields: []collection.Field{
			{
				Type: collection.TypeTabs,
				Tabs: []collection.Tab{
					{Label: i18n.T("Informations Patient", "Patient Information"), Fields: identityFields()},
					{Label: i18n.T("Hospitalisations", "Hospitalizations"), Fields: []collection.Field{hospitalizationsField()}},
					{Label: i18n.T("Allergies & Traitements", "Allergies & Treatments"), Fields: []collection.Field{allergiesField(), treatmentsField()}},
					{Label: i18n.T("Vaccinations", "Vaccinations"), Fields: []collection.Field{}},
					{Label: i18n.T("Antécédents", "Medical History"), Fields: []collection.Field{}},
				},
			},
		},
	}
}

func identityFields() []collection.Field {
	return []collection.Field{
		{
			Type: collection.TypeRow,
			Fields: []collection.Field{
				{
					Name:     "patientId",
					Type:     collection.TypeText,
					Label:    i18n.T("ID Patient", "Patient ID"),
					Required: true,
					Unique:   true,
					Admin: collection.Admin{
						Width:       "33%",
						Description: i18n.T("Identifiant unique du patient", "Unique patient identifier"),
					},
				},
				{
					Name:     "lastName",
					Type:     collection.TypeText,
					Label:    i18n.T("Nom", "Last name"),
					Required: true,
					Admin:    collection.Admin{Width: "33%"},
				},
				{
					Name:     "firstName",
					Type:     collection.TypeText,
					Label:    i18n.T("Prénom", "First name"),
					Required: true,
					Admin:    collection.Admin{Width: "34%"},
				},
			},
		},
		{
			Type: collection.TypeRow,
			Fields: []collection.Field{
				{
					Name:     "weight",
					Type:     collection.TypeNumber,
					Label:    i18n.T("Poids (kg)", "Weight (kg)"),
					Required: true,
					Admin:    collection.Admin{Width: "33%", Step: 0.1},
				},
				{
					Name:     "height",
					Type:     collection.TypeNumber,
					Label:    i18n.T("Taille (cm)", "Height (cm)"),
					Required: true,
					Admin:    collection.Admin{Width: "33%", Step: 0.1},
				},
				{
					Name:  "bmi",
					Type:  collection.TypeNumber,
					Label: i18n.T("IMC", "BMI"),
					Admin: collection.Admin{
						Width:       "34%",
						ReadOnly:    true,
						Description: i18n.T("Calculé automatiquement", "Computed automatically"),
					},
					Hooks: collection.Hooks{BeforeChange: []collection.FieldHook{ComputeBMI}},
				},
			},
		},
		{
			Type: collection.TypeRow,
			Fields: []collection.Field{
				{
					Name:     "contact",
					Type:     collection.TypeNumber,
					Label:    i18n.T("Contact", "Contact"),
					Required: true,
					Admin:    collection.Admin{Width: "33%", Step: 0.1},
				},
				{
					Name:     "emergencyContact",
					Type:     collection.TypeNumber,
					Label:    i18n.T("Contact d'urgence", "Emergency contact"),
					Required: true,
					Admin:    collection.Admin{Width: "33%", Step: 0.1},
				},
			},
		},
	}
}

func hospitalizationsField() collection.Field {
	return collection.Field{
		Name: "hospitalizations",
		Type: collection.TypeArray,
		Labels: &collection.Labels{
			Singular: i18n.T("Hospitalisation", "Hospitalization"),
			Plural:   i18n.T("Hospitalisations", "Hospitalizations"),
		},
		Admin: collection.Admin{
			InitCollapsed: true,
			Components:    collection.Components{RowLabel: HospitalizationRowLabel},
		},
		Fields: []collection.Field{
			{
				Name:     "hospitalName",
				Type:     collection.TypeText,
				Label:    i18n.T("Nom de l'hôpital", "Hospital name"),
				Required: true,
				Admin: collection.Admin{
					Description: i18n.T("Utilisé comme titre de la section", "Used as the section title"),
				},
			},
			{
				Type: collection.TypeRow,
				Fields: []collection.Field{
					{
						Name:     "admissionDate",
						Type:     collection.TypeDate,
						Label:    i18n.T("Date d'entrée", "Admission date"),
						Required: true,
						Admin:    collection.Admin{Width: "50%", Date: dayOnly},
					},
					{
						Name:  "dischargeDate",
						Type:  collection.TypeDate,
						Label: i18n.T("Date de sortie", "Discharge date"),
						Admin: collection.Admin{Width: "50%", Date: dayOnly},
					},
				},
			},
			treatmentDaysField(),
		},
	}
}

func treatmentDaysField() collection.Field {
	return collection.Field{
		Name:  "treatmentDays",
		Type:  collection.TypeArray,
		Label: i18n.T("Jours de traitement", "Treatment days"),
		Labels: &collection.Labels{
			Singular: i18n.T("Jour de traitement", "Treatment day"),
			Plural:   i18n.T("Jours de traitement", "Treatment days"),
		},
		Admin: collection.Admin{
			InitCollapsed: true,
			Components:    collection.Components{RowLabel: TreatmentDayRowLabel},
		},
		Fields: []collection.Field{
			{
				Name:     "date",
				Type:     collection.TypeDate,
				Label:    i18n.T("Date du jour", "Day"),
				Required: true,
				Admin:    collection.Admin{Date: dayOnly},
			},
			caresField(),
		},
	}
}

func caresField() collection.Field {
	return collection.Field{
		Name:  "cares",
		Type:  collection.TypeArray,
		Label: i18n.T("Soins effectués", "Care provided"),
		Labels: &collection.Labels{
			Singular: i18n.T("Soin", "Care"),
			Plural:   i18n.T("Soins", "Cares"),
		},
		Admin: collection.Admin{
			InitCollapsed: true,
			Components:    collection.Components{RowLabel: CareRowLabel},
		},
		Fields: []collection.Field{
			{
				Type: collection.TypeRow,
				Fields: []collection.Field{
					{
						Name:     "time",
						Type:     collection.TypeText,
						Label:    i18n.T("Heure", "Time"),
						Required: true,
						Admin:    collection.Admin{Width: "25%", Placeholder: i18n.T("HH:MM", "HH:MM")},
					},
					{
						Name:     "title",
						Type:     collection.TypeText,
						Label:    i18n.T("Titre du soin", "Care title"),
						Required: true,
						Admin:    collection.Admin{Width: "75%"},
					},
				},
			},
			{
				Name:  "description",
				Type:  collection.TypeTextarea,
				Label: i18n.T("Description détaillée", "Detailed description"),
				Admin: collection.Admin{Rows: 3},
				Hooks: sanitized,
			},
			{
				Name:  "note",
				Type:  collection.TypeTextarea,
				Label: i18n.T("Notes complémentaires", "Additional notes"),
				Admin: collection.Admin{
					Rows:        2,
					Placeholder: i18n.T("Observations, recommandations...", "Observations, recommendations..."),
				},
				Hooks: sanitized,
			},
			{
				Name:  "operator",
				Type:  collection.TypeText,
				Label: i18n.T("Agent responsable", "Responsible agent"),
				Admin: collection.Admin{
					ReadOnly:    true,
					Description: i18n.T("✓ Rempli automatiquement", "✓ Filled in automatically"),
				},
				Hooks: collection.Hooks{BeforeChange: []collection.FieldHook{StampOperator}},
			},
		},
	}
}

func allergiesField() collection.Field {
	return collection.Field{
		Name:  "allergies",
		Type:  collection.TypeArray,
		Label: i18n.T("Allergies", "Allergies"),
		Fields: []collection.Field{
			{
				Name:     "name",
				Type:     collection.TypeText,
				Label:    i18n.T("Nom de l'allergie", "Allergy name"),
				Required: true,
			},
		},
	}
}

func treatmentsField() collection.Field {
	return collection.Field{
		Name: "treatments",
		Type: collection.TypeArray,
		Labels: &collection.Labels{
			Singular: i18n.T("Traitement", "Treatment"),
			Plural:   i18n.T("Traitements", "Treatments"),
		},
		Admin: collection.Admin{
			InitCollapsed: true,
			Components:    collection.Components{RowLabel: TreatmentRowLabel},
		},
		Fields: []collection.Field{
			{
				Type: collection.TypeRow,
				Fields: []collection.Field{
					{
						Name:     "prescriptionDate",
						Type:     collection.TypeDate,
						Label:    i18n.T("Date de prescription", "Prescription date"),
						Required: true,
						Admin:    collection.Admin{Width: "50%", Date: dayOnly},
					},
					{
						Name:     "physician",
						Type:     collection.TypeText,
						Label:    i18n.T("Médecin prescripteur", "Prescribing physician"),
						Required: true,
						Admin:    collection.Admin{Width: "50%"},
					},
				},
			},
			medicationsField(),
			{
				Name:  "diagnosis",
				Type:  collection.TypeTextarea,
				Label: i18n.T("Diagnostic", "Diagnosis"),
				Admin: collection.Admin{Rows: 3},
				Hooks: sanitized,
			},
			{
				Name:  "additionalNotes",
				Type:  collection.TypeTextarea,
				Label: i18n.T("Notes supplémentaires", "Additional notes"),
				Admin: collection.Admin{Rows: 2},
				Hooks: sanitized,
			},
			{
				Name:  "downloadPrescription",
				Type:  collection.TypeUI,
				Admin: collection.Admin{Components: collection.Components{Field: DownloadPrescriptionButton}},
			},
		},
	}
}

func medicationsField() collection.Field {
	return collection.Field{
		Name:  "medications",
		Type:  collection.TypeArray,
		Label: i18n.T("Médicaments", "Medications"),
		Labels: &collection.Labels{
			Singular: i18n.T("Médicament", "Medication"),
			Plural:   i18n.T("Médicaments", "Medications"),
		},
		MinRows: 1,
		Admin: collection.Admin{
			InitCollapsed: true,
			Components:    collection.Components{RowLabel: MedicationRowLabel},
		},
		Fields: []collection.Field{
			{
				Name:     "name",
				Type:     collection.TypeText,
				Label:    i18n.T("Nom du médicament", "Medication name"),
				Required: true,
			},
			{
				Type: collection.TypeRow,
				Fields: []collection.Field{
					{
						Name:     "dosage",
						Type:     collection.TypeText,
						Label:    i18n.T("Dosage", "Dosage"),
						Required: true,
						Admin:    collection.Admin{Width: "33%", Placeholder: i18n.T("ex: 500mg", "e.g. 500mg")},
					},
					{
						Name:     "frequency",
						Type:     collection.TypeText,
						Label:    i18n.T("Fréquence", "Frequency"),
						Required: true,
						Admin:    collection.Admin{Width: "33%", Placeholder: i18n.T("ex: 3x/jour", "e.g. 3x/day")},
					},
					{
						Name:     "duration",
						Type:     collection.TypeText,
						Label:    i18n.T("Durée", "Duration"),
						Required: true,
						Admin:    collection.Admin{Width: "34%", Placeholder: i18n.T("ex: 7 jours", "e.g. 7 days")},
					},
				},
			},
			{
				Name:  "instructions",
				Type:  collection.TypeTextarea,
				Label: i18n.T("Instructions particulières", "Special instructions"),
				Admin: collection.Admin{
					Rows:        2,
					Placeholder: i18n.T("Prendre avec de l'eau, avant/après repas...", "Take with water, before/after meals..."),
				},
				Hooks: sanitized,
			},
		},
	}
}

var sanitized = collection.Hooks{BeforeChange: []collection.FieldHook{collection.SanitizeText}}

package patient

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// Page geometry in millimetres on A4 portrait.
const (
	pageCenter     = 105.0
	marginLeft     = 20.0
	itemIndent     = 25.0
	textWidth      = 170.0
	indentedWidth  = 160.0
	lineAdvance    = 7.0
	newPageTop     = 20.0
	medicationsMax = 250.0
	notesMax       = 230.0
	footerY        = 285.0
	lineHeightRate = 1.15
)

type prescriptionLabels struct {
	Title        string
	PatientInfo  string
	PatientID    string
	Name         string
	Measures     string // weight, height, bmi
	Prescription string
	Date         string
	Physician    string
	Diagnosis    string
	Medications  string
	Unnamed      string
	Dosage       string
	Frequency    string
	Duration     string
	Instructions string
	Notes        string
	Footer       string // page, total pages, date
}

var prescriptionText = map[string]prescriptionLabels{
	i18n.French: {
		Title:        "ORDONNANCE MÉDICALE",
		PatientInfo:  "INFORMATIONS PATIENT",
		PatientID:    "ID Patient: ",
		Name:         "Nom: ",
		Measures:     "Poids: %s kg | Taille: %s cm | IMC: %s",
		Prescription: "PRESCRIPTION",
		Date:         "Date: ",
		Physician:    "Médecin: Dr. ",
		Diagnosis:    "Diagnostic:",
		Medications:  "MÉDICAMENTS PRESCRITS",
		Unnamed:      "Médicament non spécifié",
		Dosage:       "   Dosage: ",
		Frequency:    "   Fréquence: ",
		Duration:     "   Durée: ",
		Instructions: "   Instructions:",
		Notes:        "Notes supplémentaires:",
		Footer:       "Page %d sur %s | Document généré le %s",
	},
	i18n.English: {
		Title:        "MEDICAL PRESCRIPTION",
		PatientInfo:  "PATIENT INFORMATION",
		PatientID:    "Patient ID: ",
		Name:         "Name: ",
		Measures:     "Weight: %s kg | Height: %s cm | BMI: %s",
		Prescription: "PRESCRIPTION",
		Date:         "Date: ",
		Physician:    "Physician: Dr. ",
		Diagnosis:    "Diagnosis:",
		Medications:  "PRESCRIBED MEDICATIONS",
		Unnamed:      "Unspecified medication",
		Dosage:       "   Dosage: ",
		Frequency:    "   Frequency: ",
		Duration:     "   Duration: ",
		Instructions: "   Instructions:",
		Notes:        "Additional notes:",
		Footer:       "Page %d of %s | Document generated on %s",
	},
}

func labelsFor(locale string) prescriptionLabels {
	if l, ok := prescriptionText[locale]; ok {
		return l
	}
	return prescriptionText[i18n.Fallback]
}

// RenderPrescription lays out the prescription for in as a PDF on w. now
// dates the footer.
func RenderPrescription(w io.Writer, in PrescriptionInput, now time.Time, locale string) error {
	return renderPrescription(w, in, now, locale, true)
}

func renderPrescription(w io.Writer, in PrescriptionInput, now time.Time, locale string, compress bool) error {
	l := labelsFor(locale)
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle(PrescriptionFilename(in.LastName, in.FirstName, now), true)
	pdf.AliasNbPages("{nb}")

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	footerDate := i18n.FormatDate(now, locale)
	pdf.SetFooterFunc(func() {
		p.font("I", 8)
		p.centered(footerY, fmt.Sprintf(l.Footer, pdf.PageNo(), "{nb}", footerDate))
	})
	pdf.AddPage()

	p.font("B", 20)
	p.centered(20, l.Title)
	p.font("", 10)
	p.text(marginLeft, 25, strings.Repeat("_", 80))

	p.font("B", 12)
	p.text(marginLeft, 35, l.PatientInfo)
	p.font("", 10)
	p.text(marginLeft, 45, l.PatientID+orNA(in.PatientID))
	p.text(marginLeft, 52, l.Name+in.LastName+" "+in.FirstName)
	p.text(marginLeft, 59, fmt.Sprintf(l.Measures, measure(in.Weight), measure(in.Height), measure(in.BMI)))

	t := in.Treatment
	y := 75.0
	p.font("B", 12)
	p.text(marginLeft, y, l.Prescription)
	y += 10
	p.font("", 10)

	if t.PrescriptionDate != nil {
		p.text(marginLeft, y, l.Date+i18n.FormatDate(*t.PrescriptionDate, locale))
		y += lineAdvance
	}
	if t.Physician != "" {
		p.text(marginLeft, y, l.Physician+t.Physician)
		y += lineAdvance
	}
	if t.Diagnosis != "" {
		y += 3
		p.font("B", 10)
		p.text(marginLeft, y, l.Diagnosis)
		y += lineAdvance
		p.font("", 10)
		n := p.paragraph(marginLeft, y, textWidth, t.Diagnosis)
		y += float64(n)*lineAdvance + 5
	}

	if len(t.Medications) > 0 {
		y += 5
		p.font("B", 12)
		p.text(marginLeft, y, l.Medications)
		y += 10
		p.font("", 10)

		for i, med := range t.Medications {
			if y > medicationsMax {
				pdf.AddPage()
				y = newPageTop
			}
			name := med.Name
			if name == "" {
				name = l.Unnamed
			}
			p.font("B", 10)
			p.text(itemIndent, y, strconv.Itoa(i+1)+". "+name)
			y += lineAdvance

			p.font("", 10)
			for _, line := range []struct{ label, value string }{
				{l.Dosage, med.Dosage},
				{l.Frequency, med.Frequency},
				{l.Duration, med.Duration},
			} {
				if line.value != "" {
					p.text(itemIndent, y, line.label+line.value)
					y += lineAdvance
				}
			}
			if med.Instructions != "" {
				p.text(itemIndent, y, l.Instructions)
				n := p.paragraph(itemIndent, y+lineAdvance, indentedWidth, med.Instructions)
				y += float64(n)*lineAdvance + lineAdvance
			}
			y += 5
		}
	}

	if t.AdditionalNotes != "" {
		if y > notesMax {
			pdf.AddPage()
			y = newPageTop
		}
		y += 5
		p.font("B", 10)
		p.text(marginLeft, y, l.Notes)
		y += lineAdvance
		p.font("", 10)
		p.paragraph(marginLeft, y, textWidth, t.AdditionalNotes)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return nil
}

// page draws UTF-8 text with the core Helvetica font, translating it to
// the font's cp1252 encoding.
type page struct {
	pdf  *fpdf.Fpdf
	tr   func(string) string
	size float64
}

func (p *page) font(style string, size float64) {
	p.pdf.SetFont("Helvetica", style, size)
	p.size = size
}

func (p *page) text(x, y float64, s string) {
	p.pdf.Text(x, y, p.tr(s))
}

func (p *page) centered(y float64, s string) {
	enc := p.tr(s)
	p.pdf.Text(pageCenter-p.pdf.GetStringWidth(enc)/2, y, enc)
}

// paragraph wraps s to width and draws the lines from y down at the
// font's line height. It returns the number of lines drawn.
func (p *page) paragraph(x, y, width float64, s string) int {
	lines := p.wrap(s, width)
	step := p.pdf.PointConvert(p.size) * lineHeightRate
	for i, line := range lines {
		p.pdf.Text(x, y+float64(i)*step, line)
	}
	return len(lines)
}

// wrap splits s into encoded lines no wider than width. The encoded bytes
// are widened to runes so the split measures them with the font's own
// glyph widths.
func (p *page) wrap(s string, width float64) []string {
	enc := p.tr(s)
	runes := make([]rune, len(enc))
	for i := 0; i < len(enc); i++ {
		runes[i] = rune(enc[i])
	}
	var out []string
	for _, line := range p.pdf.SplitText(string(runes), width) {
		b := make([]byte, 0, len(line))
		for _, r := range line {
			b = append(b, byte(r))
		}
		out = append(out, string(b))
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// measure prints a measurement, treating zero as absent.
func measure(v *float64) string {
	if v == nil || *v == 0 {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

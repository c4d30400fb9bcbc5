// Package clinical defines the fixed set of fields structured out of a
// mammography report.
package clinical

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is the value of any field the report does not mention.
const Unknown = "unknown"

// Field describes one structured field.
type Field struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

//go:embed fields.yaml
var fieldsYAML []byte

// Fields is the ordered field catalogue.
var Fields = mustLoadFields(fieldsYAML)

func mustLoadFields(data []byte) []Field {
	var doc struct {
		Fields []Field `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("clinical: parse fields.yaml: %v", err))
	}
	return doc.Fields
}

// StructuredData holds every clinical field as a string. Fields the report
// does not mention hold Unknown.
type StructuredData struct {
	Indication                   string `json:"indication"`
	FamilyHistoryBreastPathology string `json:"family_history_breast_pathology"`
	ClinicalExamResult           string `json:"clinical_exam_result"`
	SkinAbnormalities            string `json:"skin_abnormalities"`
	NippleAbnormalities          string `json:"nipple_abnormalities"`
	GlandDensity                 string `json:"gland_density"`
	CalcificationsPresent        string `json:"calcifications_present"`
	ArchitecturalDistortion      string `json:"architectural_distortion"`
	RetractedAreas               string `json:"retracted_areas"`
	SuspiciousLymphNodes         string `json:"suspicious_lymph_nodes"`
	EvaluationPossible           string `json:"evaluation_possible"`
	FindingsSummary              string `json:"findings_summary"`
	ACRDensityType               string `json:"acr_density_type"`
	BIRADSScore                  string `json:"birads_score"`
	FollowupRecommended          string `json:"followup_recommended"`
	RecommendationText           string `json:"recommendation_text"`
	LMP                          string `json:"lmp"`
	HormonalTherapy              string `json:"hormonal_therapy"`
	Age                          string `json:"age"`
	Children                     string `json:"children"`
}

// New returns a StructuredData with every field set to Unknown.
func New() StructuredData {
	var d StructuredData
	for _, p := range d.pointers() {
		*p = Unknown
	}
	return d
}

func (d *StructuredData) pointers() []*string {
	return []*string{
		&d.Indication,
		&d.FamilyHistoryBreastPathology,
		&d.ClinicalExamResult,
		&d.SkinAbnormalities,
		&d.NippleAbnormalities,
		&d.GlandDensity,
		&d.CalcificationsPresent,
		&d.ArchitecturalDistortion,
		&d.RetractedAreas,
		&d.SuspiciousLymphNodes,
		&d.EvaluationPossible,
		&d.FindingsSummary,
		&d.ACRDensityType,
		&d.BIRADSScore,
		&d.FollowupRecommended,
		&d.RecommendationText,
		&d.LMP,
		&d.HormonalTherapy,
		&d.Age,
		&d.Children,
	}
}

// Values returns the field values in catalogue order.
func (d StructuredData) Values() []string {
	ptrs := d.pointers()
	out := make([]string, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// Normalize trims every field and replaces empty or unknown values with
// Unknown.
func (d *StructuredData) Normalize() {
	for _, p := range d.pointers() {
		if IsUnknown(*p) {
			*p = Unknown
		} else {
			*p = strings.TrimSpace(*p)
		}
	}
}

// UnknownCount reports how many fields hold no information.
func (d StructuredData) UnknownCount() int {
	n := 0
	for _, v := range d.Values() {
		if IsUnknown(v) {
			n++
		}
	}
	return n
}

// IsUnknown reports whether v carries no information.
func IsUnknown(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, Unknown)
}

// Text renders the known fields as "name: value" lines in catalogue order.
// It is the classifier's input.
func (d StructuredData) Text() string {
	var b strings.Builder
	for i, v := range d.Values() {
		if IsUnknown(v) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Fields[i].Name)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(v))
	}
	return b.String()
}

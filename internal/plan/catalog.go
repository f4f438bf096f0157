package plan

import "github.com/lakemill/lakemill/internal/dialect"

// Catalog returns the transform descriptors for the seven base-layer
// tables, in a stable order. Empty strings in numeric source columns mean
// "absent" and coerce to NULL (an unregistered withdrawal date, a VLE site
// without week bounds); any other unparseable value is a cast fault.
func Catalog() []*Table {
	text := dialect.TypeText
	integer := dialect.TypeInteger
	double := dialect.TypeDouble

	return []*Table{
		{
			Name:   "student",
			Source: "student_info",
			Columns: []Column{
				{Source: "id_student", Target: "id_student", Type: integer},
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "gender", Target: "gender", Type: text},
				{Source: "region", Target: "region", Type: text},
				{Source: "highest_education", Target: "highest_education", Type: text},
				{Source: "imd_band", Target: "imd_band", Type: text},
				{Source: "age_band", Target: "age_band", Type: text},
				{Source: "disability", Target: "disability", Type: text},
				{Source: "final_result", Target: "final_result", Type: text},
			},
		},
		{
			Name:   "course",
			Source: "courses",
			Columns: []Column{
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "module_presentation_length", Target: "module_presentation_length", Type: integer},
			},
		},
		{
			Name:   "registration",
			Source: "student_registration",
			Columns: []Column{
				{Source: "id_student", Target: "id_student", Type: integer},
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "date_registration", Target: "date_registration", Type: integer},
				{Source: "date_unregistration", Target: "date_unregistration", Type: integer},
			},
		},
		{
			Name:   "assessment",
			Source: "assessments",
			Columns: []Column{
				{Source: "id_assessment", Target: "id_assessment", Type: integer},
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "assessment_type", Target: "assessment_type", Type: text},
				{Source: "date", Target: "date", Type: integer},
				{Source: "weight", Target: "weight", Type: integer},
			},
		},
		{
			Name:   "student_assessment",
			Source: "student_assessment",
			Columns: []Column{
				{Source: "id_assessment", Target: "id_assessment", Type: integer},
				{Source: "id_student", Target: "id_student", Type: integer},
				{Source: "date_submitted", Target: "date_submitted", Type: integer},
				{Source: "is_banked", Target: "is_banked", Type: integer},
				{Source: "score", Target: "score", Type: double},
			},
		},
		{
			Name:   "vle_site",
			Source: "vle",
			Columns: []Column{
				{Source: "id_site", Target: "id_site", Type: integer},
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "activity_type", Target: "activity_type", Type: text},
				{Source: "week_from", Target: "week_from", Type: integer},
				{Source: "week_to", Target: "week_to", Type: integer},
			},
		},
		{
			Name:   "student_vle",
			Source: "student_vle",
			Columns: []Column{
				{Source: "id_student", Target: "id_student", Type: integer},
				{Source: "id_site", Target: "id_site", Type: integer},
				{Source: "code_module", Target: "code_module", Type: text},
				{Source: "code_presentation", Target: "code_presentation", Type: text},
				{Source: "date", Target: "date", Type: integer},
				{Source: "sum_click", Target: "sum_click", Type: integer},
			},
		},
	}
}

// ByName returns the descriptor for the named base table.
func ByName(name string) (*Table, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// BySource returns the descriptor reading from the named raw table.
func BySource(source string) (*Table, bool) {
	for _, t := range Catalog() {
		if t.Source == source {
			return t, true
		}
	}
	return nil, false
}

package star

// Dimensions returns the star-layer dimension descriptors in a stable order.
//
// dim_student keys on id_student with last-write-wins resolution ordered by
// (code_presentation, code_module) descending: when a student's demographic
// attributes drift across presentations, the most recent presentation wins
// and the dimension still carries exactly one row per student.
func Dimensions() []*Dimension {
	return []*Dimension{
		{
			Name:   "dim_student",
			Source: "student",
			Columns: []string{
				"id_student", "gender", "region", "highest_education",
				"imd_band", "age_band", "disability",
			},
			Key:     []string{"id_student"},
			OrderBy: []string{"code_presentation", "code_module"},
		},
		{
			Name:     "dim_course",
			Source:   "course",
			Columns:  []string{"code_module", "code_presentation", "module_presentation_length"},
			Distinct: true,
		},
		{
			Name:   "dim_assessment",
			Source: "assessment",
			Columns: []string{
				"id_assessment", "code_module", "code_presentation",
				"assessment_type", "date", "weight",
			},
			AssertUnique: "id_assessment",
		},
	}
}

// Facts returns the star-layer fact descriptors in a stable order.
func Facts() []*Fact {
	return []*Fact{
		{
			Name:        "fact_assessment_score",
			Left:        "student_assessment",
			Right:       "assessment",
			Key:         "id_assessment",
			LeftColumns: []string{"id_assessment", "id_student", "date_submitted", "is_banked", "score"},
			RightColumns: []string{
				"code_module", "code_presentation", "assessment_type", "weight",
			},
		},
		{
			Name:        "fact_vle_interactions",
			Left:        "student_vle",
			Right:       "vle_site",
			Key:         "id_site",
			LeftColumns: []string{"id_student", "id_site", "date", "sum_click"},
			RightColumns: []string{
				"code_module", "code_presentation", "activity_type",
			},
		},
	}
}

// Package source defines the fixed set of delimited source files the
// pipeline ingests, and a preflight scanner that validates their structure
// before any data reaches the warehouse.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is one named delimited input with a fixed raw-layer target table.
type Source struct {
	// Name is the fixed source identifier (e.g. "studentInfo").
	Name string
	// File is the file name looked up under the sources directory.
	File string
	// Table is the raw-layer table the source is loaded into.
	Table string
}

// Path returns the source's location under dir.
func (s Source) Path(dir string) string {
	return filepath.Join(dir, s.File)
}

// All returns the seven registered sources in a stable order.
func All() []Source {
	return []Source{
		{Name: "studentInfo", File: "studentInfo.csv", Table: "student_info"},
		{Name: "courses", File: "courses.csv", Table: "courses"},
		{Name: "studentRegistration", File: "studentRegistration.csv", Table: "student_registration"},
		{Name: "assessments", File: "assessments.csv", Table: "assessments"},
		{Name: "studentAssessment", File: "studentAssessment.csv", Table: "student_assessment"},
		{Name: "vle", File: "vle.csv", Table: "vle"},
		{Name: "studentVle", File: "studentVle.csv", Table: "student_vle"},
	}
}

// ByName returns the source registered under name.
func ByName(name string) (Source, bool) {
	for _, s := range All() {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// ByTable returns the source whose raw table is table.
func ByTable(table string) (Source, bool) {
	for _, s := range All() {
		if s.Table == table {
			return s, true
		}
	}
	return Source{}, false
}

// ScanResult summarizes the structure of a delimited file.
type ScanResult struct {
	// Header holds the column names from the first row.
	Header []string
	// Rows is the number of data rows with the expected field count.
	Rows int64
	// Ragged is the number of data rows whose field count differs from
	// the header.
	Ragged int64
}

// Scan reads the file at path and reports its header, row count, and how
// many rows are ragged. It never loads data anywhere; the ragged-row policy
// decision belongs to the caller.
func Scan(path string) (*ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("source file %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	result := &ScanResult{Header: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(record) == len(header) {
			result.Rows++
		} else {
			result.Ragged++
		}
	}

	return result, nil
}

package subject

import (
	"fmt"
	"strconv"
	"strings"

	"abidenet/domain/core"
)

// Diagnosis is the ABIDE DX_GROUP code
type Diagnosis int

const (
	DiagnosisUnknown Diagnosis = 0
	DiagnosisASD     Diagnosis = 1
	DiagnosisTDC     Diagnosis = 2
)

// String returns the group label used in every output table
func (d Diagnosis) String() string {
	switch d {
	case DiagnosisASD:
		return "ASD"
	case DiagnosisTDC:
		return "TDC"
	default:
		return "Unknown"
	}
}

// Sign returns +1 for ASD and -1 for TDC; used as the "group" PCA anchor
func (d Diagnosis) Sign() float64 {
	if d == DiagnosisASD {
		return 1
	}
	return -1
}

// ParseDiagnosis accepts the DX_GROUP code (1/2) or a group label
func ParseDiagnosis(s string) (Diagnosis, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "ASD", "AUTISM":
		return DiagnosisASD, nil
	case "TDC", "HC", "CONTROL":
		return DiagnosisTDC, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DiagnosisUnknown, fmt.Errorf("invalid diagnosis %q", s)
	}
	switch int(v) {
	case 1:
		return DiagnosisASD, nil
	case 2:
		return DiagnosisTDC, nil
	}
	return DiagnosisUnknown, fmt.Errorf("invalid diagnosis code %q", s)
}

// Subject is one phenotype row that survived upstream cleaning
type Subject struct {
	ID        core.SubjectID `json:"id"`
	Diagnosis Diagnosis      `json:"diagnosis"`
}

// QCStatus is the per-subject outcome of connectivity assembly
type QCStatus string

const (
	StatusKept             QCStatus = "kept"
	StatusMissing          QCStatus = "missing_file"
	StatusReadError        QCStatus = "read_error"
	StatusShapeMismatch    QCStatus = "shape_mismatch"
	StatusTooManyBadROIs   QCStatus = "too_many_bad_rois"
	StatusInvalidCovariate QCStatus = "invalid_covariates"
)

// QCStatuses lists every status in ledger order, for reporting
var QCStatuses = []QCStatus{
	StatusKept,
	StatusMissing,
	StatusReadError,
	StatusShapeMismatch,
	StatusTooManyBadROIs,
	StatusInvalidCovariate,
}

// QCEntry is one row of the QC ledger. NBad and NImputed are only meaningful once
// the correlation engine ran for the subject.
type QCEntry struct {
	SubjectID core.SubjectID `json:"subject_id" db:"subject_id"`
	Status    QCStatus       `json:"status" db:"status"`
	NBad      int            `json:"n_bad" db:"n_bad"`
	NImputed  int            `json:"n_imputed" db:"n_imputed"`
	Reason    string         `json:"reason,omitempty" db:"reason"`
}

// Kept reports whether the subject made it into the cube
func (e QCEntry) Kept() bool {
	return e.Status == StatusKept
}

// CountByStatus tallies a ledger
func CountByStatus(ledger []QCEntry) map[QCStatus]int {
	counts := make(map[QCStatus]int, len(QCStatuses))
	for _, e := range ledger {
		counts[e.Status]++
	}
	return counts
}

package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnosis(t *testing.T) {
	tests := []struct {
		in   string
		want Diagnosis
		err  bool
	}{
		{"1", DiagnosisASD, false},
		{"2", DiagnosisTDC, false},
		{"2.0", DiagnosisTDC, false},
		{"asd", DiagnosisASD, false},
		{"HC", DiagnosisTDC, false},
		{"3", DiagnosisUnknown, true},
		{"", DiagnosisUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseDiagnosis(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDiagnosisSign(t *testing.T) {
	assert.Equal(t, 1.0, DiagnosisASD.Sign())
	assert.Equal(t, -1.0, DiagnosisTDC.Sign())
	assert.Equal(t, "ASD", DiagnosisASD.String())
	assert.Equal(t, "TDC", DiagnosisTDC.String())
}

func TestCountByStatus(t *testing.T) {
	ledger := []QCEntry{
		{SubjectID: "a", Status: StatusKept},
		{SubjectID: "b", Status: StatusKept},
		{SubjectID: "c", Status: StatusMissing},
		{SubjectID: "d", Status: StatusTooManyBadROIs, NBad: 40},
	}
	counts := CountByStatus(ledger)
	assert.Equal(t, 2, counts[StatusKept])
	assert.Equal(t, 1, counts[StatusMissing])
	assert.Equal(t, 1, counts[StatusTooManyBadROIs])
	assert.Equal(t, 0, counts[StatusReadError])
}

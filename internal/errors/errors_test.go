package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"abidenet/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("sparsity out of range")
	wrapped := Wrapf(base, "loading %s", ".env")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Contains(t, wrapped.Error(), "loading .env")
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWrapMapsDomainSentinels(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{core.NewArtifactNotFoundError("regressed/conn_resid.f32"), CodeNotFound},
		{core.NewMissingColumnError("phenotype", "DX_GROUP"), CodeInvalidInput},
		{fmt.Errorf("%w: 2 subjects", core.ErrInsufficientData), CodeValidationError},
		{stderrors.New("disk full"), CodeInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, GetCode(Wrap(tt.err, "stage failed")), tt.err.Error())
	}
}

func TestMissingArtifact(t *testing.T) {
	err := MissingArtifact("connectivity/conn.f32")
	assert.True(t, stderrors.Is(err, core.ErrArtifactNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestDatabaseError(t *testing.T) {
	err := Wrap(DatabaseError("failed to list runs", stderrors.New("connection refused")), "api")
	assert.Equal(t, CodeDatabaseError, GetCode(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err  error
		kind Kind
	}{
		{ErrReaderNotFound, KindNotFound},
		{ErrMaterialUnavailable, KindMaterialUnavailable},
		{ErrLoanLimitExceeded, KindLoanLimitExceeded},
		{invalidRequest("lo que sea"), KindInvalidRequest},
		{repositoryUnavailable(errors.New("timeout")), KindRepositoryUnavailable},
		{fmt.Errorf("wrapped: %w", ErrLoanAlreadyReturned), KindAlreadyReturned},
		{errors.New("foreign"), Kind("")},
		{nil, Kind("")},
	}
	for _, tt := range testCases {
		assert.Equal(t, tt.kind, KindOf(tt.err))
	}
}

func TestRepositoryUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := repositoryUnavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "El repositorio no está disponible")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSentinelMatchingSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("while creating loan: %w", ErrReaderSuspended)

	assert.ErrorIs(t, wrapped, ErrReaderSuspended)
	assert.NotErrorIs(t, wrapped, ErrReaderNotFound)
}

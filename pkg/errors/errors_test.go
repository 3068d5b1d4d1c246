package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/colstore/pkg/errors"
)

func TestIs(t *testing.T) {
	err := errors.New(errors.ErrNoSuchTable, "table \"t\"")
	assert.True(t, errors.Is(err, errors.ErrNoSuchTable))
	assert.False(t, errors.Is(err, errors.ErrDuplicateTable))

	wrapped := fmt.Errorf("create: %w", err)
	assert.True(t, errors.Is(wrapped, errors.ErrNoSuchTable))
	assert.Equal(t, errors.ErrNoSuchTable, errors.CodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := errors.Wrap(cause, errors.ErrStorageFailure, "put column")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageFailure))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Cause(err))
	assert.Equal(t, "put column: disk on fire", err.Error())

	var ce *errors.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, errors.ErrStorageFailure, ce.Code)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, errors.Wrap(nil, errors.ErrStorageFailure, "noop"))
}

func TestWrapSameCode(t *testing.T) {
	inner := errors.New(errors.ErrBackendUnavailable, "closed")
	err := errors.Wrap(inner, errors.ErrBackendUnavailable, "get column")

	assert.True(t, errors.Is(err, errors.ErrBackendUnavailable))
	assert.Nil(t, errors.Cause(err))
	assert.Equal(t, "get column: closed", err.Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Code
	}{
		{"nil", nil, ""},
		{"plain", stderrors.New("boom"), errors.ErrUncoded},
		{"coded", errors.New(errors.ErrEncoding, "too wide"), errors.ErrEncoding},
		{"formatted", errors.Newf(errors.ErrInvalidEncoding, "length %d", 3), errors.ErrInvalidEncoding},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errors.CodeOf(tc.err))
		})
	}
}

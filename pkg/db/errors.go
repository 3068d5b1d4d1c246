package db

import (
	"context"
	stderrors "errors"

	"github.com/eigerco/colstore/pkg/errors"
)

// ErrNotFound is returned by Backend.GetColumn for a missing column or row.
var ErrNotFound = stderrors.New("db: column not found")

// ErrClosed reports an operation on a closed handle.
func ErrClosed(backend string) error {
	return errors.Newf(errors.ErrBackendUnavailable, "%s: backend is closed", backend)
}

// NoSuchTable reports an operation on an undefined table.
func NoSuchTable(name string) error {
	return errors.Newf(errors.ErrNoSuchTable, "table %q does not exist", name)
}

// DuplicateTable reports a create on an existing table name.
func DuplicateTable(name string) error {
	return errors.Newf(errors.ErrDuplicateTable, "table %q already exists", name)
}

// CheckContext fails with ErrStorageFailure once ctx is done.
func CheckContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrStorageFailure, "operation abandoned")
	}
	return nil
}

// StorageFailure wraps an engine error raised on an established connection.
// Errors that already carry a code pass through with op prepended.
func StorageFailure(err error, op string) error {
	if err == nil {
		return nil
	}
	if c := errors.CodeOf(err); c != errors.ErrUncoded {
		return errors.WithMessage(err, op)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrStorageFailure, op+": operation abandoned")
	}
	return errors.Wrap(err, errors.ErrStorageFailure, op)
}

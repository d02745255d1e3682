package user

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every caller-input error returned by Store.
var ErrValidation = errors.New("validation failed")

var (
	// ErrInvalidID is returned for ids that cannot be used as a storage key.
	ErrInvalidID = fmt.Errorf("%w: invalid user id", ErrValidation)

	// ErrMissingFields is returned by AppendMessage when from or text is empty.
	ErrMissingFields = fmt.Errorf("%w: from and text are required", ErrValidation)

	// ErrMissingText is returned by Broadcast when text is empty.
	ErrMissingText = fmt.Errorf("%w: text is required", ErrValidation)
)

// StorageError reports a failure to read, parse or write a persisted record.
type StorageError struct {
	// Op is the failing step: "ensure", "list", "read", "parse", "encode" or "write".
	Op string
	// ID is the record involved, empty for collection-wide steps.
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, id string, err error) error {
	return &StorageError{Op: op, ID: id, Err: err}
}

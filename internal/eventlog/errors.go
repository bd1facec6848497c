package eventlog

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for operations against a closed store.
var ErrClosed = errors.New("event store is closed")

// StorageError wraps any persistence or serialization fault so callers can
// distinguish storage trouble from validation trouble.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("eventlog %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

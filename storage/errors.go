package storage

import "fmt"

// StorageError reports a failed persistence operation: the backing
// database is unreachable, a write fails mid-transaction, or a stored
// document cannot be decoded.
type StorageError struct {
	Op  string // the operation that failed, e.g. "append turn"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

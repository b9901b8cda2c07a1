package queuestore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no entry has the id.
	ErrNotFound = errors.New("queuestore: not found")
	// ErrStorageFailure matches every open, read, write or commit failure.
	ErrStorageFailure = errors.New("queuestore: storage failure")
	// ErrClosed is wrapped in a StorageError after Close.
	ErrClosed = errors.New("queuestore: closed")
)

// StorageError records the failing operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("queuestore: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorageFailure) true for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

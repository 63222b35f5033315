package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDescription   = errors.New("invalid description")
	ErrCategoryMismatch     = errors.New("category does not match transaction kind")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrInvalidUser          = errors.New("invalid user id")
	ErrInvalidTransactionID = errors.New("invalid transaction id")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrMissingFullName      = errors.New("full name is required")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("record not found")
	ErrStorage              = errors.New("storage error")
)

// StorageError wraps a failure reported by a persistence backend.
// It matches both ErrStorage and the underlying cause under errors.Is.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err for operation op. A nil err yields nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// IsValidation reports whether err is one of the input validation errors
// that callers should surface to the user as a field error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInvalidDescription,
		ErrCategoryMismatch,
		ErrUnknownCategory,
		ErrInvalidUser,
		ErrInvalidTransactionID,
		ErrInvalidEmail,
		ErrInvalidPassword,
		ErrMissingFullName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotUnderstood means the duration text does not match the grammar.
	ErrNotUnderstood = errors.New("duration not understood")
	ErrEmptyText     = errors.New("reminder text is empty")
	// ErrTooManyReminders means the owner hit reminders.max_per_owner.
	ErrTooManyReminders = errors.New("too many pending reminders")
	ErrNotStarted       = errors.New("reminder service not started")
	ErrStopped          = errors.New("scheduler stopped")

	ErrStore = errors.New("store error")
)

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStore) true for every StoreError.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

package scheduler

import (
	"errors"
	"fmt"

	"reminderd/internal/storage"
)

var (
	// ErrSchedulerStopped is returned by operations issued after shutdown
	// began or after a failed start.
	ErrSchedulerStopped = errors.New("scheduler stopped")
	// ErrNotStarted is returned when a registration call times out waiting
	// for startup to complete.
	ErrNotStarted = errors.New("scheduler not started")
	// ErrReminderNotFound is returned by operations on a reminder that does
	// not exist.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrInvalidArgument marks registration validation failures.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrVersionConflict aliases the storage sentinel so callers need not
	// import the storage package.
	ErrVersionConflict = storage.ErrVersionConflict
)

func errInvalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

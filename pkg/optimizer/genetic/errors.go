package genetic

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks every error raised while validating a Config.
// A run never starts once it is returned.
var ErrConfiguration = errors.New("genetic: invalid configuration")

// FitnessError wraps a failure returned by the caller's fitness function
type FitnessError struct {
	Index int
	Err   error
}

func (e *FitnessError) Error() string {
	return fmt.Sprintf("genetic: fitness function failed for individual %d: %v", e.Index, e.Err)
}

func (e *FitnessError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

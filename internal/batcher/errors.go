package batcher

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// PartialFailureError reports items that still failed when the pass limit was reached
type PartialFailureError struct {
	// Failed holds the input indices that never succeeded, ascending
	Failed []int
	// Passes is the number of passes that were run
	Passes int
	// Err combines the last error of every failed item, in Failed order
	Err error
}

func newPartialFailure(failed []int, errs []error, passes int) *PartialFailureError {
	indices := make([]int, len(failed))
	copy(indices, failed)
	return &PartialFailureError{
		Failed: indices,
		Passes: passes,
		Err:    multierr.Combine(errs...),
	}
}

// Error implements the error interface
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d items still failing after %d passes: %v", len(e.Failed), e.Passes, e.Err)
}

// Unwrap returns the combined item errors
func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// ItemErrors returns the individual item errors, in Failed order
func (e *PartialFailureError) ItemErrors() []error {
	return multierr.Errors(e.Err)
}

// pendingError marks a pass that ended with failed items; it keeps the retry loop going
type pendingError struct {
	count int
}

func (e *pendingError) Error() string {
	return fmt.Sprintf("%d items pending", e.count)
}

func isPending(err error) bool {
	var pe *pendingError
	return errors.As(err, &pe)
}

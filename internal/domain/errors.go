// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

// InsufficientDataError signals that a product's history is too short for
// the requested model. Callers treat this as a normal answer, not a crash.
type InsufficientDataError struct {
	ProductID int64
	Points    int
	Minimum   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for product %d: %d observations, minimum %d required",
		e.ProductID, e.Points, e.Minimum)
}

// ModelFitError wraps a numerical failure during model fitting, such as a
// singular design matrix.
type ModelFitError struct {
	Model  string
	Reason string
	Err    error
}

func (e *ModelFitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s model failed: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s model failed: %s", e.Model, e.Reason)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

// InvalidDateRangeError signals an impossible training or walk window.
type InvalidDateRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("invalid date range %s..%s: %s",
		e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"), e.Reason)
}

// PersistenceConflictError signals a lost write race on a uniqueness
// constraint (concurrent alert creation or forecast insertion).
type PersistenceConflictError struct {
	Entity string
	Err    error
}

func (e *PersistenceConflictError) Error() string {
	return fmt.Sprintf("persistence conflict on %s: %v", e.Entity, e.Err)
}

func (e *PersistenceConflictError) Unwrap() error { return e.Err }

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ide *InsufficientDataError
	return errors.As(err, &ide)
}

// IsConflict reports whether err is a PersistenceConflictError.
func IsConflict(err error) bool {
	var pce *PersistenceConflictError
	return errors.As(err, &pce)
}

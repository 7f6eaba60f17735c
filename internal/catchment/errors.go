package catchment

import (
	"fmt"
	"strings"
)

// SchemaError reports a required column missing from an input table. It is
// fatal for the dataset the table belongs to.
type SchemaError struct {
	Source    string
	Column    string
	Available []string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("catchment: column %q not found in %s", e.Column, e.Source)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (have: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

// DomainError reports a distance threshold the decay function cannot use.
type DomainError struct {
	Threshold float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("catchment: distance threshold must be positive, got %g", e.Threshold)
}

// ThresholdError attaches dataset and threshold context to a fatal error.
type ThresholdError struct {
	Dataset   string
	Label     string
	Threshold float64
	Err       error
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("catchment: dataset %q threshold %s (%g): %v", e.Dataset, e.Label, e.Threshold, e.Err)
}

func (e *ThresholdError) Unwrap() error {
	return e.Err
}

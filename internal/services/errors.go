package services

import (
	"fmt"
	"strings"
)

// RegistrationError reports that a service's registration hook failed.
// Registration failures are fatal to bootstrap.
type RegistrationError struct {
	Service string
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration of service %s failed: %v", e.Service, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// AmbiguousLookupError is returned when a capability lookup matches more
// than one registered service. Callers must resolve by exact type instead.
type AmbiguousLookupError struct {
	Type       string
	Candidates []string
}

func (e *AmbiguousLookupError) Error() string {
	return fmt.Sprintf("ambiguous lookup for %s: matched %s", e.Type, strings.Join(e.Candidates, ", "))
}

// AggregateError bundles the failures of a batch in which every unit of
// work was attempted. Unit names the component that ran the batch.
type AggregateError struct {
	Unit   string
	Errors []error
}

// NewAggregateError drops nil entries and returns nil when none remain,
// so callers can collect one result per unit and return it directly.
func NewAggregateError(unit string, errs []error) error {
	var causes []error
	for _, err := range errs {
		if err != nil {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return nil
	}
	return &AggregateError{Unit: unit, Errors: causes}
}

func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return fmt.Sprintf("%s: no errors", e.Unit)
	case 1:
		return fmt.Sprintf("%s failed: %v", e.Unit, e.Errors[0])
	}

	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s failed with %d errors: %s", e.Unit, len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every cause to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Count returns the number of collected causes.
func (e *AggregateError) Count() int {
	return len(e.Errors)
}

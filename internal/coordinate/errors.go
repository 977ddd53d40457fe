package coordinate

import (
	"errors"
	"fmt"
)

// ErrMalformedCoordinate is matched by every coordinate syntax error.
var ErrMalformedCoordinate = errors.New("malformed coordinate")

// MalformedCoordinateError describes why a coordinate string was rejected.
type MalformedCoordinateError struct {
	Input  string
	Reason string
}

func (e *MalformedCoordinateError) Error() string {
	return fmt.Sprintf("malformed coordinate %q: %s (syntax %s[repository!]group/artifact[/version[/type[/classifier]]])", e.Input, e.Reason, Scheme)
}

func (e *MalformedCoordinateError) Is(target error) bool {
	return target == ErrMalformedCoordinate
}

func malformed(input, reason string) error {
	return &MalformedCoordinateError{Input: input, Reason: reason}
}

package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInstalled is returned when a location is installed twice.
	ErrAlreadyInstalled = errors.New("already installed")

	// ErrUnsupportedArtifact is returned when no handler accepts a location.
	ErrUnsupportedArtifact = errors.New("unsupported artifact")

	// ErrNotFound is returned for an unknown module id.
	ErrNotFound = errors.New("module not found")

	// ErrArtifactNotFound is wrapped by an InstallationError when a
	// coordinate does not resolve.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// InstallationError wraps a failure raised while installing a location.
type InstallationError struct {
	Location string
	Handler  string
	Err      error
}

func (e *InstallationError) Error() string {
	if e.Handler == "" {
		return fmt.Sprintf("installation of %s failed: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("installation of %s with handler %s failed: %v", e.Location, e.Handler, e.Err)
}

func (e *InstallationError) Unwrap() error {
	return e.Err
}

// RemovalError wraps a handler failure during uninstall. The module
// record is kept when this is returned.
type RemovalError struct {
	ID      string
	Handler string
	Err     error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("removal of module %s with handler %s failed: %v", e.ID, e.Handler, e.Err)
}

func (e *RemovalError) Unwrap() error {
	return e.Err
}

package dispatcher

import (
	"context"
	"time"
)

// Handler manages one category of deployable artifact. The dispatcher
// offers a location to its handlers in registration order and the first
// one whose CanHandle returns true installs it.
type Handler interface {
	// Name identifies the handler in records and explicit selections.
	Name() string

	// CanHandle is a fast, side-effect free check of the artifact at
	// location, such as looking for a manifest header.
	CanHandle(ctx context.Context, location string) bool

	// Install activates the artifact and returns its id.
	Install(ctx context.Context, location string, args map[string]string) (string, error)

	// IsAlive reports whether the unit with id is still active.
	IsAlive(id string) bool

	// Uninstall deactivates the unit and releases what Install acquired.
	Uninstall(ctx context.Context, id string) error
}

// MetadataProvider is implemented by handlers that expose details about
// the units they installed, such as manifest attributes or a process id.
type MetadataProvider interface {
	Metadata(id string) map[string]string
}

// Record describes one installed unit.
type Record struct {
	ID       string
	Location string
	Handler  string
	Metadata map[string]string

	InstalledAt time.Time
}

func (r Record) clone() Record {
	md := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		md[k] = v
	}
	r.Metadata = md
	return r
}

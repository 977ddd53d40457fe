// Package dispatcher installs and removes deployment units through
// pluggable handlers.
//
// Handlers are added in registration order, which is load-bearing: when
// no handler is named explicitly, the first handler whose CanHandle
// accepts a location installs it. A generic handler registered before a
// specific one will therefore shadow it.
//
// Each installed unit is tracked by a Record keyed by the id the handler
// assigned. A location can be installed at most once at a time; install it
// again after Remove to reinstall it.
//
// Locations may be plain paths, file: URLs, http(s) URLs or mvn:
// coordinates. Coordinates are resolved and remote URLs are fetched into
// the artifact cache before any handler sees them.
//
// Errors:
//
//   - ErrAlreadyInstalled: the location is already installed
//   - ErrUnsupportedArtifact: no handler accepts the location
//   - ErrNotFound: the module id is unknown
//   - *InstallationError: a handler or the resolver failed during install
//   - *RemovalError: a handler failed during uninstall; the record is kept
package dispatcher

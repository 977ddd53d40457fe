// Package loader discovers the services of a runtime and orders them for
// registration.
//
// Candidates are the compiled-in services passed to New plus anything
// supplied with Add. They are sorted by ascending priority; ties keep
// discovery order. A service's priority may be overridden with the
// "<name>.priority" property, read from the first candidate that is a
// PropertySource (normally the configuration service), or from the
// environment when none is present.
//
// Priority order is the only way bootstrap dependencies are expressed:
// the configuration store comes first, the lifecycle orchestrator soon
// after, cosmetic services last.
package loader

// Package coordinate parses artifact coordinates and resolves them to
// concrete locations.
//
// A coordinate has the form
//
//	[mvn:][repository!]group/artifact[/version[/type[/classifier]]]
//
// and maps to the canonical repository path
//
//	group/with/slashes/artifact/version/artifact-version[-classifier].type
//
// Timestamped snapshot versions (1.0-20240131.120000-3) use the logical
// 1.0-SNAPSHOT directory while keeping the timestamp in the file name.
//
// Resolver looks an artifact up in the local cache, then in resources
// bundled with the binary, then in each configured repository. Absence is
// a normal outcome, reported by a false return rather than an error.
package coordinate

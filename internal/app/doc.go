// Package app assembles and runs a minho runtime.
//
// A Runtime owns a service registry and a loader. Start registers the
// runtime itself first, at the lowest possible priority, then every
// candidate service in ascending priority order, and finally runs the
// lifecycle start phase. Close shuts the registry down in reverse
// registration order, which runs the lifecycle shutdown phase and removes
// every installed module.
//
// # Default services
//
// DefaultServices builds the services of a complete runtime:
//
//   - config: the flat property store
//   - lifecycle: start and shutdown callbacks
//   - config loaders: .properties, .json, .yaml and .toml sources, then
//     command line overrides
//   - metrics: Prometheus counters, optionally served over HTTP
//   - resolver: coordinate resolution against cache, bundled resources
//     and remote repositories
//   - dispatcher: module installation through handlers
//   - bundle and process handlers
//   - deploy: hot deployment from a watched directory
//   - banner: printed once everything has started
//
// Every priority can be changed with a "<name>.priority" property or the
// matching environment variable, for example DISPATCHER_PRIORITY=-450.
//
// # Running
//
// Application.Run starts the runtime, installs the locations given on the
// command line, notifies systemd that the service is ready and then waits
// on the registered Awaiter. SignalAwaiter waits for SIGINT or SIGTERM.
// Without an Awaiter, Run shuts down as soon as startup is complete.
package app

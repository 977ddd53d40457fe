// Package logging provides the structured logger shared by every minho
// subsystem.
//
// It wraps log/slog behind a small package-level API. Each message carries a
// subsystem attribute so output can be filtered per kernel component:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Registry", "Registered service %s", name)
//	logging.Debug("Resolver", "Cache miss for %s", path)
//	logging.Error("Dispatcher", err, "Failed to install %s", location)
//
// # Subsystems
//
//   - Runtime: kernel bootstrap and shutdown
//   - Registry: service registration and teardown
//   - Loader: service discovery and ordering
//   - Lifecycle: start and shutdown callback batches
//   - Dispatcher: module installation and removal
//   - Resolver: artifact coordinate resolution
//   - Config: configuration loading
//   - Deployer: hot deploy directory watching
//
// Init may be called more than once; the most recent configuration wins.
// Logging is safe for concurrent use.
package logging

// Package ports defines the interfaces (ports) that connect the lifecycle
// core to infrastructure adapters.
//
// Ports are the boundaries between the core and the outside world. They
// describe what the core needs from external systems without specifying
// how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Coordinator]: request/response calls to the remote coordinator
//   - [ConvergenceEngine]: applies a bundle to the host
//   - [AuditSink]: opens audits for user visible progress
//   - [StateRepository]: persists and loads the lifecycle record
//   - [HostControl]: shutdown and forced shutdown of the host
//   - [TagSource]: startup tags
//   - [LoginApplier], [RepositoryConfigurator], [VolumeManager]: boot step effects
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The core packages depend only on these interfaces. Adapters under
// internal/adapters implement them with zerolog, the file system, HTTP and
// systemd.
package ports

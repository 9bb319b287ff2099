// Package domain contains the core entities and value objects of lifeline.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (HTTP, file system, logging) and holds only the
// vocabulary shared by the lifecycle core.
//
// # Entities
//
//   - [Status]: instance lifecycle status (booting, operational, ...)
//   - [DecommissionKind]: terminate, stop or reboot
//   - [Bundle] and [Executable]: a unit of configuration work
//   - [OperationContext]: one scheduled bundle on its way to the worker
//   - [State]: the persisted record used for crash recovery
package domain

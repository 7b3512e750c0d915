// Package backend provides the FriendlyPix fan-out backend.

// This package contains no code. The server and tools live under cmd/ and
// the implementation is organized into subpackages:

// - internal/pathindex: denormalization rules and the path index built from them
// - internal/scanner: finds every location that references an entity
// - internal/fanout: plans the deletions a cascade will perform
// - internal/workpool: bounded concurrent execution of cascade steps
// - internal/cascade: runs cascading deletes and records reports
// - internal/moderation: text filtering and image blur checks
// - internal/store: the tree store interface and its backends
// - internal/repository: the identity directory
// - internal/hooks: write triggers dispatched after store changes
// - internal/jobs: scheduled cleanup and profile maintenance
// - internal/handlers: HTTP routes and in-process actions

// See the individual package documentation for detailed API reference.
package backend

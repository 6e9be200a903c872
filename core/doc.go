// Package core provides the foundational domain types and interfaces used by
// DefiMesh. It defines the core abstractions for:
//
//   - ExecutionState (the shared whiteboard all agents read and write)
//   - Agents (units of work owning one slice of the execution state)
//   - Pluggable stores for durable records and the fast-path state cache
//   - Append-only audit facts (decisions, reasoning steps, risk records)
//   - Routing identifiers and the terminal sentinel of the control loop
//
// The package intentionally keeps implementation concerns (persistence,
// engine orchestration, concrete agents) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core

package core

import "context"

// Agent is the polymorphic unit of work driven by the control loop. Given
// the current execution state it produces an updated state plus a routing
// hint in the state's NextAgent field.
//
// Implementations must:
//   - Read only the fields relevant to their responsibility and never mutate
//     a field owned by another agent.
//   - Write their result into the single state field they own.
//   - Append exactly one reasoning entry per invocation (in-memory and as a
//     durable audit record).
//   - Set NextAgent before returning. The control loop persists the updated
//     state through the coordination layer after every turn, so agents never
//     write state themselves.
//   - Treat expected conditions (absent proposal, no active position) as
//     valid states, not errors; returned errors are reserved for
//     infrastructure failures the loop must handle.
type Agent interface {
	// Name returns the human-readable agent name used in reasoning entries
	// and audit records.
	Name() string

	// RouteID returns the agent's member of the closed routing set, the
	// value the control loop dispatches on.
	RouteID() string

	// Execute runs the agent against the given state and returns the updated
	// state. Implementations respect ctx cancellation on blocking calls.
	Execute(ctx context.Context, state *ExecutionState) (*ExecutionState, error)
}

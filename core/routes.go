package core

// Routing identifiers form the closed set of values the NextAgent control
// field may take. The control loop refuses to dispatch on anything else;
// an unrecognized identifier is a fatal routing error, never silently
// ignored.
const (
	// RouteOrchestrator names the orchestrating agent that consults the
	// decision oracle and owns the routing decision.
	RouteOrchestrator = "orchestrator"

	// RouteStrategy names the yield-strategy agent producing the
	// migrate-or-hold proposal.
	RouteStrategy = "defi_agent"

	// RouteRisk names the risk agent scoring a proposed destination
	// protocol.
	RouteRisk = "risk_agent"

	// RouteForecast names the market-forecast agent.
	RouteForecast = "prediction_agent"

	// RouteProductivity names the agent composing user-facing actions.
	RouteProductivity = "productivity_agent"

	// RouteValidation names the final-validation agent.
	RouteValidation = "qa_agent"

	// RouteEnd is the terminal sentinel: the control loop stops when the
	// routing field carries this value.
	RouteEnd = "END"
)

// Execution lifecycle statuses persisted alongside the state blob.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var knownRoutes = map[string]bool{
	RouteOrchestrator: true,
	RouteStrategy:     true,
	RouteRisk:         true,
	RouteForecast:     true,
	RouteProductivity: true,
	RouteValidation:   true,
	RouteEnd:          true,
}

// KnownRoute reports whether id is a member of the closed routing set,
// including the terminal sentinel.
func KnownRoute(id string) bool { return knownRoutes[id] }

// Routes returns the closed set of dispatchable agent identifiers, excluding
// the terminal sentinel. The order is stable.
func Routes() []string {
	return []string{
		RouteOrchestrator,
		RouteStrategy,
		RouteRisk,
		RouteForecast,
		RouteProductivity,
		RouteValidation,
	}
}

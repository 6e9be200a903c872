// Package engine runs the coordination control loop: it dispatches the
// execution state to whichever agent the routing field names, persists the
// state after every turn and terminates on END, on the iteration bound, on
// cancellation or on a routing anomaly. One engine serves many concurrent
// executions; each execution is owned by exactly one loop.
package engine

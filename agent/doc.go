// Package agent implements the DefiMesh specialists: the orchestrating
// agent that routes work and the worker agents for strategy, risk,
// forecasting, productivity and validation. Every agent reads and mutates
// the shared execution state and reports its reasoning through the
// coordination layer; workers always route control back to the
// orchestrator.
package agent

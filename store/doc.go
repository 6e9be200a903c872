// Package store houses concrete implementations of the core.Store contract.
// The interface itself lives in the core package to centralize domain
// contracts; keeping only implementations here prevents higher level
// packages (agents, engine, coordination) from depending on concrete
// storage.
//
// Additional backends belong in sub-packages (see store/mysql) so only the
// wiring layer decides which implementation to instantiate.
package store

// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing execution states and the records derived
// from them. These helpers are intentionally minimal and are not intended
// for production usage.
package testutil

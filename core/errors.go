package core

import "errors"

// ErrNotFound indicates a lookup against the Store or Cache missed. Callers
// branch on it with errors.Is; wrapped variants carry the failing key.
var ErrNotFound = errors.New("not found")

// ErrUnknownAgent indicates a routing identifier outside the closed set or
// without a registered implementation.
var ErrUnknownAgent = errors.New("unknown agent")

package route

import "errors"

var (
	// ErrInvalidRoute means the directive cannot be resolved against the
	// topology (unknown node, unassigned or out-of-range slot, bad syntax).
	ErrInvalidRoute = errors.New("invalid route")
	// ErrNoNodes means the topology has no node of the role the directive
	// requires.
	ErrNoNodes = errors.New("no nodes of required role")
)

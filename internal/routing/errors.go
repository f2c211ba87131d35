package routing

import "errors"

var (
	// ErrNoRoute means the destination is outside the source's component.
	// FirstHop returns the source address alongside it.
	ErrNoRoute = errors.New("no route to destination")

	// ErrUnknownAddress is returned for an address that was never registered.
	ErrUnknownAddress = errors.New("address not registered")

	// ErrUnreachable means the predecessor walk did not arrive back at the
	// source within n steps.
	ErrUnreachable = errors.New("predecessor chain does not reach source")

	// ErrStaleTable is returned when the table was never built or the node set
	// changed since the last rebuild.
	ErrStaleTable = errors.New("routing table is stale, rebuild required")

	ErrNilHandle        = errors.New("nil position provider")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrNodeIndex        = errors.New("node index out of range")
)

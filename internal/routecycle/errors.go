package routecycle

import "errors"

// Domain errors for the routecycle package.
var (
	// ErrCycleNotFound is returned when no route cycle has the given id.
	ErrCycleNotFound = errors.New("routecycle: not found")

	// ErrNodeOccupied is returned when creating a cycle for a node whose
	// latest cycle is still placed or started.
	ErrNodeOccupied = errors.New("routecycle: node occupied by an active cycle")

	// ErrInvalidState is returned when a transition is not allowed from the
	// cycle's current state, or when a window is requested before start.
	ErrInvalidState = errors.New("routecycle: invalid state for operation")

	// ErrCycleTerminal is returned when editing fields of a completed or
	// canceled cycle.
	ErrCycleTerminal = errors.New("routecycle: illegal operation on ended cycle")

	// ErrNoChange is returned for an update that names no field.
	ErrNoChange = errors.New("routecycle: update changes nothing")

	// ErrInvalidCoordinate is returned for an out-of-range departure or
	// destination coordinate.
	ErrInvalidCoordinate = errors.New("routecycle: invalid coordinate")

	// ErrInvalidThreshold is returned for a NaN or infinite alert threshold.
	ErrInvalidThreshold = errors.New("routecycle: invalid alert threshold")
)

package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device matches the id or address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering an address already registered for the kind.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidAddress is returned when a hardware address is not six hex octets.
	ErrInvalidAddress = errors.New("device: invalid hardware address")

	// ErrInvalidKind is returned for a kind other than core or node.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrNoChange is returned when an update names no field or changes nothing.
	ErrNoChange = errors.New("device: update changes nothing")

	// ErrDeviceDeleted is returned when mutating a soft-deleted device.
	ErrDeviceDeleted = errors.New("device: deleted")

	// ErrNotANode is returned when a node-only operation targets a core.
	ErrNotANode = errors.New("device: not a node")

	// ErrCoreNotFound is returned when reassigning a node to a core that
	// does not exist, is not a core, or is deleted.
	ErrCoreNotFound = errors.New("device: core not found")
)

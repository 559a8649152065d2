package device

import "time"

// Kind distinguishes gateways from sensor tags.
type Kind string

const (
	// KindCore is a gateway that relays position telemetry and node readings.
	KindCore Kind = "core"

	// KindNode is a sensor tag attached to a shipment.
	KindNode Kind = "node"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCore || k == KindNode
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// ConnectionStatus is derived at read time from how recently a device reported.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// StatusAt returns connected when lastSeen is within offlineAfter of now.
// A device that has never reported is disconnected.
func StatusAt(lastSeen *time.Time, now time.Time, offlineAfter time.Duration) ConnectionStatus {
	if lastSeen == nil || now.Sub(*lastSeen) > offlineAfter {
		return StatusDisconnected
	}
	return StatusConnected
}

// Device is a registered core or node.
//
// Address is the normalised hardware address and never changes after
// registration. CoreID is only ever set on nodes.
type Device struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Address   string    `json:"address"`
	Label     *string   `json:"label"`
	CoreID    *int64    `json:"core_id,omitempty"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.Label != nil {
		label := *d.Label
		c.Label = &label
	}
	if d.CoreID != nil {
		coreID := *d.CoreID
		c.CoreID = &coreID
	}
	return &c
}

// ListFilter narrows List results. The zero value lists every live device.
type ListFilter struct {
	Kind           Kind
	CoreID         *int64
	IncludeDeleted bool
}

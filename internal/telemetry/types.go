package telemetry

import (
	"fmt"
	"time"
)

// TimeLayout is the wire and storage format of every event timestamp.
const TimeLayout = "2006-01-02T15:04:05Z"

// ParseTime parses a timestamp in TimeLayout and returns it in UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.UTC(), nil
}

// FormatTime renders t in TimeLayout. Sub-second precision is dropped.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Kind identifies the event variant.
type Kind string

const (
	KindCoreTelemetry Kind = "core_telemetry"
	KindNodeTelemetry Kind = "node_telemetry"
	KindImpactAlert   Kind = "impact_alert"
	KindLiquidAlert   Kind = "liquid_alert"
)

// AlertKind is the trigger behind an AlertEvent.
type AlertKind string

const (
	AlertImpact AlertKind = "impact"
	AlertLiquid AlertKind = "liquid"
)

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	return k == AlertImpact || k == AlertLiquid
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate is within range.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, c.Latitude, c.Longitude)
	}
	return nil
}

// NewCoordinate builds a coordinate from optional parts. Both parts absent
// yields nil; exactly one present is an error.
func NewCoordinate(latitude, longitude *float64) (*Coordinate, error) {
	switch {
	case latitude == nil && longitude == nil:
		return nil, nil
	case latitude == nil || longitude == nil:
		return nil, fmt.Errorf("%w: latitude and longitude must be given together", ErrInvalidCoordinate)
	}
	c := Coordinate{Latitude: *latitude, Longitude: *longitude}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Event is implemented by every event variant.
type Event interface {
	Kind() Kind
	DeviceID() int64
	OccurredAt() time.Time
}

// Correlatable is an event relayed by a gateway that may be located by the
// gateway's nearest-in-time position.
type Correlatable interface {
	Event
	ReportingCoreID() int64
	Position() *Coordinate
}

// CoreEvent is a gateway telemetry report.
type CoreEvent struct {
	ID         int64       `json:"id"`
	CoreID     int64       `json:"core_id"`
	Coordinate *Coordinate `json:"coordinate"`
	EventTime  time.Time   `json:"event_time"`
	ReceivedAt time.Time   `json:"received_at"`
}

func (e CoreEvent) Kind() Kind            { return KindCoreTelemetry }
func (e CoreEvent) DeviceID() int64       { return e.CoreID }
func (e CoreEvent) OccurredAt() time.Time { return e.EventTime }

// NodeEvent is a sensor reading relayed by a gateway.
type NodeEvent struct {
	ID             int64       `json:"id"`
	NodeID         int64       `json:"node_id"`
	CoreID         int64       `json:"core_id"`
	Temperature    *float64    `json:"temperature"`
	Humidity       *float64    `json:"humidity"`
	Coordinate     *Coordinate `json:"coordinate"`
	CoreReceivedAt time.Time   `json:"core_received_at"`
	EventTime      time.Time   `json:"event_time"`
	ReceivedAt     time.Time   `json:"received_at"`
}

func (e NodeEvent) Kind() Kind             { return KindNodeTelemetry }
func (e NodeEvent) DeviceID() int64        { return e.NodeID }
func (e NodeEvent) OccurredAt() time.Time  { return e.EventTime }
func (e NodeEvent) ReportingCoreID() int64 { return e.CoreID }
func (e NodeEvent) Position() *Coordinate  { return e.Coordinate }

// AlertEvent is an impact or liquid trigger relayed by a gateway.
type AlertEvent struct {
	ID             int64       `json:"id"`
	AlertKind      AlertKind   `json:"alert_kind"`
	NodeID         int64       `json:"node_id"`
	CoreID         int64       `json:"core_id"`
	Coordinate     *Coordinate `json:"coordinate"`
	CoreReceivedAt time.Time   `json:"core_received_at"`
	EventTime      time.Time   `json:"event_time"`
	ReceivedAt     time.Time   `json:"received_at"`
}

func (e AlertEvent) Kind() Kind {
	if e.AlertKind == AlertLiquid {
		return KindLiquidAlert
	}
	return KindImpactAlert
}
func (e AlertEvent) DeviceID() int64        { return e.NodeID }
func (e AlertEvent) OccurredAt() time.Time  { return e.EventTime }
func (e AlertEvent) ReportingCoreID() int64 { return e.CoreID }
func (e AlertEvent) Position() *Coordinate  { return e.Coordinate }

// TimeRange bounds event times inclusively. A nil bound is open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Query narrows a per-device or cross-device event listing.
// A zero Limit returns every match.
type Query struct {
	Range TimeRange
	Limit int
}

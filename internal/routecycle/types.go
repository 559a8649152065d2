package routecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/coldtag-core/internal/optional"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// State is the lifecycle position of a cycle, derived from its flags.
type State string

const (
	StatePlaced    State = "placed"
	StateStarted   State = "started"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

// Cycle is one shipment assignment of a node.
type Cycle struct {
	ID     int64 `json:"id"`
	NodeID int64 `json:"node_id"`

	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	OwnerName   *string `json:"owner_name"`
	// PlacedAt is a free-text placement location.
	PlacedAt *string `json:"placed_at"`

	Departure   *telemetry.Coordinate `json:"departure"`
	Destination *telemetry.Coordinate `json:"destination"`

	TemperatureAlertThreshold *float64 `json:"temperature_alert_threshold"`
	HumidityAlertThreshold    *float64 `json:"humidity_alert_threshold"`

	Started        bool       `json:"started"`
	Completed      bool       `json:"completed"`
	Canceled       bool       `json:"canceled"`
	DispatchTime   *time.Time `json:"dispatch_time"`
	CompletionTime *time.Time `json:"completion_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the lifecycle state from the flags.
func (c *Cycle) State() State {
	switch {
	case c.Canceled:
		return StateCanceled
	case c.Completed:
		return StateCompleted
	case c.Started:
		return StateStarted
	default:
		return StatePlaced
	}
}

// Terminal reports whether the cycle is completed or canceled.
func (c *Cycle) Terminal() bool {
	return c.Completed || c.Canceled
}

// ActiveWindow returns [dispatch_time, completion_time]. The upper bound is
// open until the cycle completes. A cycle that never started has no window.
func (c *Cycle) ActiveWindow() (telemetry.TimeRange, error) {
	if !c.Started || c.DispatchTime == nil {
		return telemetry.TimeRange{}, fmt.Errorf("%w: cycle %d has not started", ErrInvalidState, c.ID)
	}
	from := *c.DispatchTime
	r := telemetry.TimeRange{From: &from}
	if c.CompletionTime != nil {
		to := *c.CompletionTime
		r.To = &to
	}
	return r, nil
}

// Draft holds the caller-supplied fields of a new cycle.
type Draft struct {
	NodeID int64 `json:"node_id" validate:"required,gt=0"`

	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	OwnerName   *string `json:"owner_name"`
	PlacedAt    *string `json:"placed_at"`

	Departure   *telemetry.Coordinate `json:"departure"`
	Destination *telemetry.Coordinate `json:"destination"`

	TemperatureAlertThreshold *float64 `json:"temperature_alert_threshold"`
	HumidityAlertThreshold    *float64 `json:"humidity_alert_threshold"`
}

// Validate checks coordinates and thresholds.
func (d Draft) Validate() error {
	if err := validateCoordinate(d.Departure); err != nil {
		return err
	}
	if err := validateCoordinate(d.Destination); err != nil {
		return err
	}
	if err := validateThreshold(d.TemperatureAlertThreshold); err != nil {
		return err
	}
	return validateThreshold(d.HumidityAlertThreshold)
}

// Update is a partial edit of a non-terminal cycle's descriptive fields.
// Lifecycle flags and timestamps are changed only by transitions.
type Update struct {
	Identifier  optional.Value[string] `json:"identifier"`
	Description optional.Value[string] `json:"description"`
	OwnerName   optional.Value[string] `json:"owner_name"`
	PlacedAt    optional.Value[string] `json:"placed_at"`

	Departure   optional.Value[telemetry.Coordinate] `json:"departure"`
	Destination optional.Value[telemetry.Coordinate] `json:"destination"`

	TemperatureAlertThreshold optional.Value[float64] `json:"temperature_alert_threshold"`
	HumidityAlertThreshold    optional.Value[float64] `json:"humidity_alert_threshold"`
}

// IsEmpty reports whether the update names no field.
func (u Update) IsEmpty() bool {
	return !u.Identifier.IsSet() && !u.Description.IsSet() && !u.OwnerName.IsSet() &&
		!u.PlacedAt.IsSet() && !u.Departure.IsSet() && !u.Destination.IsSet() &&
		!u.TemperatureAlertThreshold.IsSet() && !u.HumidityAlertThreshold.IsSet()
}

// Validate checks the values being set.
func (u Update) Validate() error {
	if u.IsEmpty() {
		return ErrNoChange
	}
	if err := validateCoordinate(u.Departure.Ptr()); err != nil {
		return err
	}
	if err := validateCoordinate(u.Destination.Ptr()); err != nil {
		return err
	}
	if err := validateThreshold(u.TemperatureAlertThreshold.Ptr()); err != nil {
		return err
	}
	return validateThreshold(u.HumidityAlertThreshold.Ptr())
}

// ListFilter narrows List. A nil NodeID lists every node's cycles.
type ListFilter struct {
	NodeID *int64
	Active bool
}

func validateCoordinate(c *telemetry.Coordinate) error {
	if c == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, c.Latitude, c.Longitude)
	}
	return nil
}

func validateThreshold(v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, *v)
	}
	return nil
}

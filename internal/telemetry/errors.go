package telemetry

import "errors"

var (
	// ErrInvalidTime is returned when a timestamp is not in TimeLayout.
	ErrInvalidTime = errors.New("telemetry: invalid timestamp")

	// ErrMissingEventTime is returned when appending an event without an event time.
	ErrMissingEventTime = errors.New("telemetry: event time is required")

	// ErrInvalidCoordinate is returned for half-present or out-of-range coordinates.
	ErrInvalidCoordinate = errors.New("telemetry: invalid coordinate")

	// ErrInvalidAlertKind is returned for an alert kind other than impact or liquid.
	ErrInvalidAlertKind = errors.New("telemetry: invalid alert kind")

	// ErrUnsupportedEvent is returned when Append receives an unknown event type.
	ErrUnsupportedEvent = errors.New("telemetry: unsupported event type")
)

package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/coldtag-core/internal/device"
	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// corePayload is the body of core_event/{address}/telementry.
type corePayload struct {
	EventTime string   `json:"event_time" validate:"required,datetime=2006-01-02T15:04:05Z"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// nodePayload is the body of node_event/{address}/telementry.
type nodePayload struct {
	CoreAddress    string   `json:"core_mac_address" validate:"required,hwaddr"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,longitude"`
	CoreReceivedAt string   `json:"core_coldtag_received_time" validate:"required,datetime=2006-01-02T15:04:05Z"`
	EventTime      string   `json:"event_time" validate:"required,datetime=2006-01-02T15:04:05Z"`
}

// alertPayload is the body of node_event/{address}/alert/{kind}.
type alertPayload struct {
	CoreAddress    string   `json:"core_mac_address" validate:"required,hwaddr"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,longitude"`
	CoreReceivedAt string   `json:"core_coldtag_received_time" validate:"required,datetime=2006-01-02T15:04:05Z"`
	EventTime      string   `json:"event_time" validate:"required,datetime=2006-01-02T15:04:05Z"`
}

func (p corePayload) coordinatePair() (*float64, *float64)  { return p.Latitude, p.Longitude }
func (p nodePayload) coordinatePair() (*float64, *float64)  { return p.Latitude, p.Longitude }
func (p alertPayload) coordinatePair() (*float64, *float64) { return p.Latitude, p.Longitude }

// newValidator builds the payload validator.
func newValidator() *validator.Validate {
	validate := validator.New()
	device.RegisterAddressValidation(validate)
	validate.RegisterStructValidation(coordinatePairValidation, corePayload{}, nodePayload{}, alertPayload{})
	return validate
}

// coordinatePairValidation rejects a payload carrying only one of latitude
// and longitude.
func coordinatePairValidation(sl validator.StructLevel) {
	p, ok := sl.Current().Interface().(interface {
		coordinatePair() (*float64, *float64)
	})
	if !ok {
		return
	}
	lat, lon := p.coordinatePair()
	if (lat == nil) != (lon == nil) {
		sl.ReportError(lat, "latitude", "Latitude", "coordinate_pair", "")
		sl.ReportError(lon, "longitude", "Longitude", "coordinate_pair", "")
	}
}

// decode unmarshals and validates a payload.
func decode(validate *validator.Validate, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// relayedTimes parses the two timestamps of a message a core relays for a node.
func relayedTimes(eventTime, coreReceivedAt string) (time.Time, time.Time, error) {
	et, err := telemetry.ParseTime(eventTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: event_time: %w", ErrInvalidPayload, err)
	}
	rt, err := telemetry.ParseTime(coreReceivedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: core_coldtag_received_time: %w", ErrInvalidPayload, err)
	}
	return et, rt, nil
}

func coordinate(lat, lon *float64) (*telemetry.Coordinate, error) {
	c, err := telemetry.NewCoordinate(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return c, nil
}

package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/coldtag-core/internal/telemetry"
)

// Measurement names written by the mirror.
const (
	MeasurementCoreTelemetry = "core_telemetry"
	MeasurementNodeTelemetry = "node_telemetry"
	MeasurementNodeAlert     = "node_alert"
)

// WriteEvent mirrors a stored event as one point stamped with its event time.
//
// device is the hardware address of the event's device and core that of the
// relaying gateway; both become tags. Unsupported events are ignored.
func (c *Client) WriteEvent(ev telemetry.Event, device, core string) {
	if c.client == nil || c.closed.Load() {
		return
	}
	if point := EventPoint(ev, device, core); point != nil {
		c.writer.WritePoint(point)
	}
}

// EventPoint builds the point for ev, or nil for an unknown event type.
//
// Points without a measured value carry reported=true, since InfluxDB
// rejects points with no fields.
func EventPoint(ev telemetry.Event, device, core string) *write.Point {
	tags := map[string]string{}
	fields := map[string]any{}

	switch e := ev.(type) {
	case *telemetry.CoreEvent:
		tags["core"] = device
		addPosition(fields, e.Coordinate)
		return newPoint(MeasurementCoreTelemetry, tags, fields, e)

	case *telemetry.NodeEvent:
		tags["node"] = device
		tags["core"] = core
		if e.Temperature != nil {
			fields["temperature"] = *e.Temperature
		}
		if e.Humidity != nil {
			fields["humidity"] = *e.Humidity
		}
		addPosition(fields, e.Coordinate)
		return newPoint(MeasurementNodeTelemetry, tags, fields, e)

	case *telemetry.AlertEvent:
		tags["node"] = device
		tags["core"] = core
		tags["kind"] = string(e.AlertKind)
		fields["count"] = 1
		addPosition(fields, e.Coordinate)
		return newPoint(MeasurementNodeAlert, tags, fields, e)
	}
	return nil
}

func newPoint(measurement string, tags map[string]string, fields map[string]any, ev telemetry.Event) *write.Point {
	if len(fields) == 0 {
		fields["reported"] = true
	}
	return write.NewPoint(measurement, tags, fields, ev.OccurredAt())
}

func addPosition(fields map[string]any, c *telemetry.Coordinate) {
	if c == nil {
		return
	}
	fields["latitude"] = c.Latitude
	fields["longitude"] = c.Longitude
}
